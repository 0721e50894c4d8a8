package preflight

import (
	"context"

	"phylobench/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all preflight checks for the given config. The directory
// roots are checked first, then free space, external programs, and finally
// the analysis scripts the configured pipelines invoke.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Results tree", cfg.Paths.ResultsDir, true))
	results = append(results, CheckDirectoryAccess("Truth tree", cfg.Paths.TruthDir, false))
	results = append(results, CheckDirectoryAccess("Inputs tree", cfg.Paths.InputsDir, false))

	// The web tree is optional; publish fails cleanly when it is absent.
	if cfg.Paths.WebDir != "" {
		results = append(results, CheckDirectoryAccess("Web tree", cfg.Paths.WebDir, true))
	}

	results = append(results, CheckDiskSpace(cfg.Paths.ResultsDir))
	results = append(results, CheckTools(ctx, cfg)...)
	results = append(results, CheckScripts(cfg)...)

	return results
}
