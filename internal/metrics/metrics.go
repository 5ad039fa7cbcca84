// Package metrics exposes Prometheus instrumentation for the Aegis core:
// handshake, session, rotation, and replay-guard counters/gauges/histograms.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aegis"

// Registry is the Prometheus registry all Aegis collectors register into.
// A dedicated registry (rather than the global default) keeps a Session
// library consumer from polluting or colliding with a host process's own
// metrics.
var Registry = prometheus.NewRegistry()
