package telemetry_test

import (
	"context"
	"testing"

	"github.com/kory-ai/workbench-core/internal/telemetry"
)

func TestNoopImplementationsDoNotPanic(t *testing.T) {
	logger := telemetry.NewNoopLogger()
	logger.Info(context.Background(), "hello", "k", "v")

	metrics := telemetry.NewNoopMetrics()
	metrics.IncCounter("c", 1, "tag", "v")

	tracer := telemetry.NewNoopTracer()
	ctx, span := tracer.Start(context.Background(), "op")
	span.AddEvent("did something")
	span.End()
	_ = ctx
}

func TestSlogLoggerUsesDefaultWhenNil(t *testing.T) {
	logger := telemetry.NewSlogLogger(nil)
	logger.Debug(context.Background(), "debug message")
}
