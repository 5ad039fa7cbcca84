package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aegis-chat/aegis/config"
	"github.com/aegis-chat/aegis/health"
	"github.com/aegis-chat/aegis/internal/aerr"
	"github.com/aegis-chat/aegis/internal/logger"
	"github.com/aegis-chat/aegis/internal/metrics"
	"github.com/aegis-chat/aegis/session"
	"github.com/aegis-chat/aegis/transport"
)

// runtimeFlags collects the flags listen and connect share.
type runtimeFlags struct {
	configDir        string
	useTLS           bool
	certFile         string
	keyFile          string
	insecureSkipVrfy bool
	serverName       string
	rotationSeconds  int
}

// loadRuntime resolves a session.Config, Logger, and the ambient metrics/
// health settings via config.Load (an optional .env file, then one YAML
// file — <environment>.yaml, else default.yaml, else config.yaml — then
// AEGIS_* environment variables), with CLI flags taking final precedence
// over all of it.
func loadRuntime(f runtimeFlags) (session.Config, logger.Logger, *config.Config) {
	opts := config.DefaultLoaderOptions()
	if f.configDir != "" {
		opts.ConfigDir = f.configDir
	}

	fileCfg, err := config.Load(opts)
	if err != nil {
		fileCfg = &config.Config{}
	}

	sessCfg := session.DefaultConfig()
	log := logger.NewDefaultLogger()
	if err == nil {
		sessCfg.RotationInterval = fileCfg.Session.RotationInterval
		sessCfg.HeartbeatInterval = fileCfg.Session.HeartbeatInterval
		sessCfg.MaxFrameSize = fileCfg.Session.MaxFrameSize
		sessCfg.MaxSkipped = fileCfg.Session.MaxSkipped
		log.SetLevel(parseLevel(fileCfg.Logging.Level))
	} else {
		log.Warn("failed to load configuration, using built-in defaults", logger.Error(err))
	}

	if f.rotationSeconds > 0 {
		sessCfg.RotationInterval = time.Duration(f.rotationSeconds) * time.Second
	}

	return sessCfg, log, fileCfg
}

// startAmbientServers launches the metrics and health HTTP endpoints in the
// background when the loaded config enables them. Neither is part of the
// peer protocol; both are sidecar surfaces for an operator, so failures
// here are logged, not fatal to the chat session.
func startAmbientServers(ctx context.Context, fileCfg *config.Config, src health.SessionSource, log logger.Logger) {
	if fileCfg.Metrics.Enabled {
		go func() {
			log.Info("starting metrics server", logger.String("addr", fileCfg.Metrics.Addr))
			if err := metrics.StartServer(fileCfg.Metrics.Addr); err != nil {
				log.Warn("metrics server stopped", logger.Error(err))
			}
		}()
	}
	if fileCfg.Health.Enabled {
		checker := health.NewChecker(5 * time.Second)
		checker.Register("session_activity", health.SessionActivityCheck(src, 2*fileCfg.Session.HeartbeatInterval))
		go func() {
			log.Info("starting health server", logger.String("addr", fileCfg.Health.Addr), logger.String("path", fileCfg.Health.Path))
			if err := health.StartServer(ctx, fileCfg.Health.Addr, fileCfg.Health.Path, checker); err != nil {
				log.Warn("health server stopped", logger.Error(err))
			}
		}()
	}
}

func parseLevel(level string) logger.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DebugLevel
	case "warn":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}

// serverTLSConfig loads the server-side certificate flags --tls requires
// on listen. Certificate loading is the one spot this CLI reaches for
// crypto/tls/x509 directly: there is no PKI story in scope (spec's
// non-goal), and parsing a PEM cert/key pair off disk has no ecosystem
// alternative worth adopting over the standard library's own loader.
func serverTLSConfig(f runtimeFlags) (transport.TLSConfig, error) {
	if f.certFile == "" || f.keyFile == "" {
		return transport.TLSConfig{}, aerr.New(aerr.IoError, "--tls requires --cert-file and --key-file")
	}
	cert, err := tls.LoadX509KeyPair(f.certFile, f.keyFile)
	if err != nil {
		return transport.TLSConfig{}, aerr.Wrap(aerr.IoError, "load tls certificate", err)
	}
	return transport.TLSConfig{Certificate: &cert}, nil
}

func clientTLSConfig(f runtimeFlags) transport.TLSConfig {
	return transport.TLSConfig{
		ServerName:         f.serverName,
		InsecureSkipVerify: f.insecureSkipVrfy,
	}
}

// runChat drives the session's run loop alongside a stdin/stdout chat loop:
// one goroutine reads lines and queues them as outbound Data payloads,
// the main goroutine drains decrypted inbound payloads to stdout until the
// session ends.
func runChat(sess *session.Session, fileCfg *config.Config, log logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startAmbientServers(ctx, fileCfg, sess, log)
	go sess.Run(ctx)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			if err := sess.Send(ctx, []byte(line)); err != nil {
				log.Warn("send failed", logger.Error(err))
				return
			}
		}
		_ = sess.Close()
	}()

	for {
		select {
		case msg, ok := <-sess.Recv():
			if !ok {
				continue
			}
			fmt.Printf("peer> %s\n", string(msg))
		case <-sess.Done():
			return sess.Err()
		}
	}
}
