// Package layout derives per-run file paths from the configured directory
// roots and discovers method result trees on disk.
//
// The on-disk contract: results live at
// <results>/<method>/<run-id>/<run-id><suffix>, truth at
// <truth>/<run-id>/<run-id>.phi.npz, and simulation inputs at
// <inputs>/<run-id>.ssm plus <run-id>.params.json. Every derivation is a pure
// string computation so reruns always land on the same paths.
package layout

import (
	"path/filepath"
	"strings"

	"phylobench/internal/config"
)

// Artifact suffixes written next to a run's result file.
const (
	SuffixTruthPhi     = ".phi.npz"
	SuffixMutphi       = ".mutphi.npz"
	SuffixMutdist      = ".mutdist.npz"
	SuffixMutrel       = ".mutrel.npz"
	SuffixPairwise     = ".pairwise.json"
	SuffixSummary      = ".summ.json"
	SuffixMutations    = ".muts.json"
	SuffixPairwisePlot = ".pairwise.html"
	SuffixSSM          = ".ssm"
	SuffixParams       = ".params.json"
)

// MetricSuffix returns the artifact suffix for a metric name, e.g.
// "mutphi" -> ".mutphi.npz".
func MetricSuffix(metric string) string {
	return "." + metric + ".npz"
}

// Layout holds the three read roots the pipelines operate on.
type Layout struct {
	ResultsDir string
	TruthDir   string
	InputsDir  string
}

// FromConfig builds a Layout from the configured paths.
func FromConfig(cfg *config.Config) Layout {
	return Layout{
		ResultsDir: cfg.Paths.ResultsDir,
		TruthDir:   cfg.Paths.TruthDir,
		InputsDir:  cfg.Paths.InputsDir,
	}
}

// MethodDir returns the root of one method's result tree.
func (l Layout) MethodDir(method string) string {
	return filepath.Join(l.ResultsDir, method)
}

// RunDir returns the directory holding one run's result and artifacts.
func (l Layout) RunDir(method, runID string) string {
	return filepath.Join(l.ResultsDir, method, runID)
}

// ArtifactFile returns the path of a run artifact with the given suffix.
func (l Layout) ArtifactFile(method, runID, suffix string) string {
	return filepath.Join(l.ResultsDir, method, runID, runID+suffix)
}

// TruthFile returns the ground-truth phi archive for a run.
func (l Layout) TruthFile(runID string) string {
	return filepath.Join(l.TruthDir, runID, runID+SuffixTruthPhi)
}

// SSMFile returns the simulated somatic mutation input for a run.
func (l Layout) SSMFile(runID string) string {
	return filepath.Join(l.InputsDir, runID+SuffixSSM)
}

// ParamsFile returns the simulation parameter input for a run.
func (l Layout) ParamsFile(runID string) string {
	return filepath.Join(l.InputsDir, runID+SuffixParams)
}

// RunIDFromResultPath derives the run id from a result file path by stripping
// the suffix from the basename. The second return is false when the file does
// not carry the suffix.
func RunIDFromResultPath(path, suffix string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, suffix) || len(base) == len(suffix) {
		return "", false
	}
	return strings.TrimSuffix(base, suffix), true
}
