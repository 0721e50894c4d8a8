package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"phylobench/internal/config"
	"phylobench/internal/layout"
)

// WriteFile creates path (and parent directories) with the given content.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// SeedEvalRun creates a complete evaluable run: the method result file plus
// the truth, ssm, and params companions the evaluation scripts consume.
func SeedEvalRun(t testing.TB, cfg *config.Config, method, runID string) {
	t.Helper()

	lay := layout.FromConfig(cfg)
	WriteFile(t, lay.ArtifactFile(method, runID, cfg.Eval.ResultSuffix), "result")
	WriteFile(t, lay.TruthFile(runID), "truth")
	WriteFile(t, lay.SSMFile(runID), "ssm")
	WriteFile(t, lay.ParamsFile(runID), "{}")
}

// SeedResultOnly creates just the method result file, leaving the truth and
// input companions absent.
func SeedResultOnly(t testing.TB, cfg *config.Config, method, runID string) {
	t.Helper()

	lay := layout.FromConfig(cfg)
	WriteFile(t, lay.ArtifactFile(method, runID, cfg.Eval.ResultSuffix), "result")
}

// WriteArtifact places an artifact with the given suffix in the run directory.
func WriteArtifact(t testing.TB, cfg *config.Config, method, runID, suffix, content string) {
	t.Helper()

	lay := layout.FromConfig(cfg)
	WriteFile(t, lay.ArtifactFile(method, runID, suffix), content)
}

// WriteScripts creates empty script files under the configured scripts
// directory so presence checks succeed.
func WriteScripts(t testing.TB, cfg *config.Config, names ...string) {
	t.Helper()

	for _, name := range names {
		WriteFile(t, cfg.ScriptPath(name), "#!/usr/bin/env python3\n")
	}
}
