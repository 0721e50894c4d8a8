package task_test

import (
	"strings"
	"testing"

	"pgregory.net/rapid"

	"phylobench/internal/layout"
	"phylobench/internal/task"
)

// runIDGen produces run ids shaped like the simulated benchmark runs,
// e.g. sim_K30_S100.
var runIDGen = rapid.StringMatching(`sim_K(1|3|10|30|100)_S(10|30|100)_R[0-9]`)

func TestPartitionProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		runIDs := rapid.SliceOfN(runIDGen, 0, 50).Draw(rt, "runIDs")
		markers := rapid.SliceOfN(rapid.SampledFrom([]string{"K30", "K100", "S100"}), 0, 3).Draw(rt, "markers")

		tasks := make([]task.Task, 0, len(runIDs))
		for _, runID := range runIDs {
			tasks = append(tasks, task.Task{
				Stage: "mutphi",
				RunID: runID,
				Command: task.Command{
					Program: "python3",
					Args:    []string{"mutphi.py", "--out", "/results/pairtree/" + runID + "/" + runID + ".mutphi.npz"},
				},
			})
		}

		marked, rest := task.Partition(tasks, markers)

		if len(marked)+len(rest) != len(tasks) {
			rt.Fatalf("partition changed task count: %d + %d != %d", len(marked), len(rest), len(tasks))
		}

		containsAny := func(tk task.Task) bool {
			line := tk.Command.String()
			for _, marker := range markers {
				if strings.Contains(line, marker) {
					return true
				}
			}
			return false
		}
		for _, tk := range marked {
			if !containsAny(tk) {
				rt.Fatalf("task %s in marked group without a marker match", tk.Label())
			}
		}
		for _, tk := range rest {
			if containsAny(tk) {
				rt.Fatalf("task %s in default group despite marker match", tk.Label())
			}
		}
	})
}

func TestArtifactPathsDisjointAcrossRunsAndMetrics(t *testing.T) {
	l := layout.Layout{ResultsDir: "/results", TruthDir: "/truth", InputsDir: "/inputs"}
	metrics := []string{"mutphi", "mutdist", "mutrel"}

	rapid.Check(t, func(rt *rapid.T) {
		runIDs := rapid.SliceOfNDistinct(runIDGen, 1, 30, rapid.ID[string]).Draw(rt, "runIDs")
		methods := rapid.SliceOfNDistinct(rapid.SampledFrom([]string{"pairtree", "pwgs", "lichee"}), 1, 3, rapid.ID[string]).Draw(rt, "methods")

		tasks := make([]task.Task, 0, len(methods)*len(runIDs)*len(metrics))
		for _, method := range methods {
			for _, runID := range runIDs {
				for _, metric := range metrics {
					tasks = append(tasks, task.Task{
						Stage:      metric,
						Method:     method,
						RunID:      runID,
						OutputPath: l.ArtifactFile(method, runID, layout.MetricSuffix(metric)),
					})
				}
			}
		}

		if err := task.ValidateDisjointOutputs(tasks); err != nil {
			rt.Fatalf("derived outputs collided: %v", err)
		}
	})
}
