package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldPipeline is the standardized structured logging key for pipeline names.
	FieldPipeline = "pipeline"
	// FieldStage is the standardized structured logging key for stage names.
	FieldStage = "stage"
	// FieldMethod is the standardized structured logging key for method names.
	FieldMethod = "method"
	// FieldRunID is the standardized structured logging key for run identifiers.
	FieldRunID = "run_id"
	// FieldBatch is the standardized structured logging key for dispatch batch identifiers.
	FieldBatch = "batch"
	// FieldWorkers is the standardized structured logging key for worker-pool sizes.
	FieldWorkers = "workers"
)

type contextKey int

const (
	pipelineKey contextKey = iota
	stageKey
	runIDKey
	batchKey
)

// WithPipeline annotates the context with the active pipeline name.
func WithPipeline(ctx context.Context, pipeline string) context.Context {
	return context.WithValue(ctx, pipelineKey, pipeline)
}

// WithStage annotates the context with the active stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// WithRunID annotates the context with a run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithBatch annotates the context with a dispatch batch identifier.
func WithBatch(ctx context.Context, batch string) context.Context {
	return context.WithValue(ctx, batchKey, batch)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if v, ok := ctx.Value(pipelineKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldPipeline, v))
	}
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldStage, v))
	}
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldRunID, v))
	}
	if v, ok := ctx.Value(batchKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldBatch, v))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from
// the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
