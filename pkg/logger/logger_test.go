package logger

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestGet_WithoutInit(t *testing.T) {
	if Get() == nil {
		t.Fatal("Get() returned nil before Init")
	}
	// must not panic
	Get().Info("noop")
}

func TestInit(t *testing.T) {
	if err := Init(&Config{Level: "debug", Format: "json", ServiceName: "hotel-test"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if Get().Zap() == nil {
		t.Fatal("Zap() returned nil after Init")
	}
}

func TestErrorContext_AddsTraceFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFromZap(zap.New(core))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.ErrorContext(ctx, "confirm failed", zap.String("payment_reference", "cs_1"))

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["trace_id"] != traceID.String() {
		t.Errorf("trace_id = %v, want %s", fields["trace_id"], traceID)
	}
	if fields["payment_reference"] != "cs_1" {
		t.Errorf("payment_reference = %v, want cs_1", fields["payment_reference"])
	}
}

func TestWith(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewFromZap(zap.New(core)).With(zap.String("component", "reconciler"))

	l.Info("hello")
	l.Debug("dropped")

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}
	if logs.All()[0].ContextMap()["component"] != "reconciler" {
		t.Error("expected component field on child logger")
	}
}
