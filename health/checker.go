// Package health exposes liveness/readiness checks for a running Aegis
// process: whether it is accepting connections, how many sessions are
// established, and whether any of them have gone quiet past their
// heartbeat timeout.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aegis-chat/aegis/internal/logger"
)

// Status is the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the result of a single health check.
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// Check is a single health check function.
type Check func(ctx context.Context) error

// Checker manages and runs a set of named checks, caching each result for
// a short TTL so a busy /healthz endpoint doesn't re-run expensive checks
// on every poll.
type Checker struct {
	mu       sync.RWMutex
	checks   map[string]Check
	timeout  time.Duration
	cacheTTL time.Duration
	cache    map[string]*cachedResult
	logger   logger.Logger
}

type cachedResult struct {
	result    *CheckResult
	expiresAt time.Time
}

// NewChecker creates a Checker with the given per-check timeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		checks:   make(map[string]Check),
		timeout:  timeout,
		cacheTTL: 10 * time.Second,
		cache:    make(map[string]*cachedResult),
		logger:   logger.GetDefaultLogger(),
	}
}

// SetLogger overrides the checker's logger.
func (c *Checker) SetLogger(l logger.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = l
}

// Register adds a named check.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Unregister removes a named check.
func (c *Checker) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
	delete(c.cache, name)
}

// Run executes a single named check, using the cache when fresh.
func (c *Checker) Run(ctx context.Context, name string) (*CheckResult, error) {
	c.mu.RLock()
	check, exists := c.checks[name]
	c.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("health check not found: %s", name)
	}

	if cached := c.getCached(name); cached != nil {
		return cached, nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := check(checkCtx)
	duration := time.Since(start)

	result := &CheckResult{Name: name, Timestamp: time.Now(), Duration: duration}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
		c.logger.Warn("health check failed", logger.String("name", name), logger.Error(err))
	} else {
		result.Status = StatusHealthy
	}

	c.setCached(name, result)
	return result, nil
}

// RunAll executes every registered check concurrently.
func (c *Checker) RunAll(ctx context.Context) map[string]*CheckResult {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	c.mu.RUnlock()

	results := make(map[string]*CheckResult, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			result, err := c.Run(ctx, name)
			if err != nil {
				result = &CheckResult{Name: name, Status: StatusUnhealthy, Message: err.Error(), Timestamp: time.Now()}
			}
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return results
}

// OverallStatus rolls RunAll's results up to a single status.
func (c *Checker) OverallStatus(ctx context.Context) Status {
	results := c.RunAll(ctx)
	if len(results) == 0 {
		return StatusHealthy
	}

	degraded := false
	for _, r := range results {
		if r.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
		if r.Status == StatusDegraded {
			degraded = true
		}
	}
	if degraded {
		return StatusDegraded
	}
	return StatusHealthy
}

func (c *Checker) getCached(name string) *CheckResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cached, ok := c.cache[name]
	if !ok || time.Now().After(cached.expiresAt) {
		return nil
	}
	return cached.result
}

func (c *Checker) setCached(name string, result *CheckResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[name] = &cachedResult{result: result, expiresAt: time.Now().Add(c.cacheTTL)}
}

// Report is the full JSON body served at /healthz.
type Report struct {
	Status    Status                  `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Checks    map[string]*CheckResult `json:"checks"`
}

// Report runs every check and assembles the response body.
func (c *Checker) Report(ctx context.Context) *Report {
	checks := c.RunAll(ctx)
	return &Report{Status: c.OverallStatus(ctx), Timestamp: time.Now(), Checks: checks}
}

// SessionSource is anything that can report how many sessions are live and
// when the least-recently-active one last saw traffic. A running listener
// implements this to feed SessionActivityCheck.
type SessionSource interface {
	ActiveSessions() int
	OldestActivity() (time.Time, bool)
}

// SessionActivityCheck fails (which Checker.Run reports as unhealthy) when
// the oldest established session has gone silent past staleAfter — a sign its heartbeat loop has
// wedged even though the process itself is still running.
func SessionActivityCheck(src SessionSource, staleAfter time.Duration) Check {
	return func(ctx context.Context) error {
		oldest, ok := src.OldestActivity()
		if !ok {
			return nil
		}
		if age := time.Since(oldest); age > staleAfter {
			return fmt.Errorf("oldest session idle for %s, exceeds %s", age, staleAfter)
		}
		return nil
	}
}
