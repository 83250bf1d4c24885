package internal

import (
	"context"
	"sync"
)

// Telemetry hooks for the write and search paths. The default emitter drops
// every measurement; service wiring can register a metrics-backed one.

// TelemetryEmitter receives one named measurement with its labels.
type TelemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

const (
	metricStageLatency = "facets_stage_latency_ms"
	metricStageCount   = "facets_stage_count"
)

var (
	teleMu   sync.Mutex
	teleImpl TelemetryEmitter = noopEmitter
)

func noopEmitter(context.Context, string, map[string]string, any) {}

// RegisterTelemetryEmitter installs fn as the process-wide emitter. A nil fn
// restores the no-op emitter.
func RegisterTelemetryEmitter(fn TelemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = noopEmitter
		return
	}
	teleImpl = fn
}

func currentEmitter() TelemetryEmitter {
	teleMu.Lock()
	defer teleMu.Unlock()
	return teleImpl
}

// EmitLatency records how long a stage ("submit", "search", "search_attributes") took.
func EmitLatency(ctx context.Context, stage string, ms int64) {
	currentEmitter()(ctx, metricStageLatency, map[string]string{"stage": stage}, ms)
}

// EmitCount records a row or candidate count for a stage.
func EmitCount(ctx context.Context, stage string, n int64) {
	currentEmitter()(ctx, metricStageCount, map[string]string{"stage": stage}, n)
}
