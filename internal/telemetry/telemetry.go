// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package telemetry exposes the ambient metrics surface: turn
// completion, VAD turn detection, and signaling relay counters,
// published via OpenTelemetry's Prometheus exporter. Grounded on the
// otel presence already in the combined dependency surface
// (go.opentelemetry.io/... in go.mod) — this module carries the same
// observability layer regardless of which higher-level dashboard
// features are out of scope.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the counters incremented across the voice pipeline.
type Metrics struct {
	provider *sdkmetric.MeterProvider

	turnsCompleted metric.Int64Counter
	turnsDetected  metric.Int64Counter
	signalsRelayed metric.Int64Counter
	sessionsActive metric.Int64UpDownCounter
}

// New builds a Metrics instance backed by a fresh Prometheus exporter
// and meter provider. Callers scrape via the exporter's registered
// http.Handler (wired in cmd/voicebridge).
func New() (*Metrics, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("friday-voice-bridge")

	turnsCompleted, err := meter.Int64Counter("voice_turns_completed_total")
	if err != nil {
		return nil, fmt.Errorf("telemetry: turns_completed counter: %w", err)
	}
	turnsDetected, err := meter.Int64Counter("voice_turns_detected_total")
	if err != nil {
		return nil, fmt.Errorf("telemetry: turns_detected counter: %w", err)
	}
	signalsRelayed, err := meter.Int64Counter("voice_signals_relayed_total")
	if err != nil {
		return nil, fmt.Errorf("telemetry: signals_relayed counter: %w", err)
	}
	sessionsActive, err := meter.Int64UpDownCounter("voice_sessions_active")
	if err != nil {
		return nil, fmt.Errorf("telemetry: sessions_active counter: %w", err)
	}

	return &Metrics{
		provider:       provider,
		turnsCompleted: turnsCompleted,
		turnsDetected:  turnsDetected,
		signalsRelayed: signalsRelayed,
		sessionsActive: sessionsActive,
	}, nil
}

func (m *Metrics) RecordTurnCompleted() {
	if m == nil {
		return
	}
	m.turnsCompleted.Add(context.Background(), 1)
}

func (m *Metrics) RecordTurnDetected() {
	if m == nil {
		return
	}
	m.turnsDetected.Add(context.Background(), 1)
}

func (m *Metrics) RecordSignalRelayed() {
	if m == nil {
		return
	}
	m.signalsRelayed.Add(context.Background(), 1)
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Add(context.Background(), 1)
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Add(context.Background(), -1)
}

// Shutdown flushes and stops the underlying meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
