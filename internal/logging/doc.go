// Package logging configures slog output for phylobench.
//
// Two handlers are supported: a console handler that prints
// "timestamp LEVEL component: message key=value ..." lines, and a JSON
// handler for machine consumption. Pipelines annotate the context with
// pipeline/stage/run identifiers via WithPipeline and friends; WithContext
// rehydrates those identifiers as attributes on a derived logger so every
// component logs the same field vocabulary.
package logging
