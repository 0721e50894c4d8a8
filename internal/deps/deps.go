package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"phylobench/internal/config"
)

// Requirement defines an external program phylobench shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
}

// Status reports the availability of a required program.
type Status struct {
	Name        string
	Command     string
	Description string
	Available   bool
	Detail      string
}

// Requirements returns the external programs the configured pipelines invoke.
// Both the doctor command and the preflight checks use this to avoid
// duplicating the list.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "Python",
			Command:     cfg.PythonBinary(),
			Description: "Runs the evaluation and post-processing scripts",
		},
		{
			Name:        "Publisher",
			Command:     cfg.PublisherBinary(),
			Description: "Copies run directories into the web tree",
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Available entries carry the probed version string when the program reports one.
func CheckBinaries(ctx context.Context, requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Detail = probeVersion(ctx, cmd)
		results = append(results, status)
	}
	return results
}

// probeVersion runs "<cmd> --version" and returns the first line of output.
// Programs that do not understand the flag yield an empty detail.
func probeVersion(ctx context.Context, cmd string) string {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	output, err := exec.CommandContext(probeCtx, cmd, "--version").CombinedOutput()
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(string(output))
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = strings.TrimSpace(text[:idx])
	}
	return text
}
