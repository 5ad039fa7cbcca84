package health

import (
	"context"
	"encoding/json"
	"net/http"
)

// Handler returns an HTTP handler that serves c.Report as JSON, with a 503
// status when the overall status is not healthy.
func Handler(c *Checker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := c.Report(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status != StatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
}

// StartServer starts a standalone health HTTP server at addr and path.
func StartServer(ctx context.Context, addr, path string, c *Checker) error {
	mux := http.NewServeMux()
	mux.Handle(path, Handler(c))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	return srv.ListenAndServe()
}
