// Package task defines the immutable descriptors fed to the dispatcher:
// typed external commands, the tasks wrapping them, and batch grouping with
// the partition and output-collision checks applied before dispatch.
package task

import (
	"fmt"
	"strings"
)

// Command is a typed argv for one external program invocation. Args are
// passed to the process verbatim; no shell is ever involved.
type Command struct {
	Program string
	Args    []string
	Env     map[string]string
}

// String renders the command as a single shell-safe line for logs and the
// ledger. Arguments containing whitespace or shell metacharacters are quoted.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quoteArg(c.Program))
	for _, arg := range c.Args {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string) string {
	if arg == "" {
		return `""`
	}
	if !strings.ContainsAny(arg, " \t\n\"'\\$&|;<>()*?[]{}#~`") {
		return arg
	}
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`, "`", "\\`")
	return `"` + replacer.Replace(arg) + `"`
}

// Task couples one command with its run coordinates and output targets.
// Immutable once constructed: it either exits zero or fails; there is no
// internal state machine.
type Task struct {
	Stage   string
	Method  string
	RunID   string
	Command Command

	// OutputPath is the primary artifact the command writes. Derived from
	// the run id and stage, so reruns overwrite rather than duplicate.
	OutputPath string

	// StderrPath, when set, captures the child's stderr to disk for
	// post-mortem inspection.
	StderrPath string
}

// Label identifies the task in logs and error messages.
func (t Task) Label() string {
	parts := make([]string, 0, 3)
	if t.Stage != "" {
		parts = append(parts, t.Stage)
	}
	if t.Method != "" {
		parts = append(parts, t.Method)
	}
	if t.RunID != "" {
		parts = append(parts, t.RunID)
	}
	if len(parts) == 0 {
		return t.Command.Program
	}
	return strings.Join(parts, "/")
}

// Batch is an ordered collection of tasks dispatched together under one
// concurrency limit and one failure policy.
type Batch struct {
	Name     string
	Pipeline string
	Workers  int
	Tasks    []Task
}

// ValidateDisjointOutputs returns an error when two tasks declare the same
// non-empty output path. Write isolation between concurrent tasks rests
// entirely on path derivation, so a collision is a construction bug.
func ValidateDisjointOutputs(tasks []Task) error {
	seen := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		if t.OutputPath == "" {
			continue
		}
		if prev, ok := seen[t.OutputPath]; ok {
			return fmt.Errorf("tasks %s and %s both write %s", prev.Label(), t.Label(), t.OutputPath)
		}
		seen[t.OutputPath] = t
	}
	return nil
}

// Partition splits tasks into (marked, rest) by substring search over the
// rendered command line. A task matching any marker lands in marked; all
// others land in rest, so every input task appears in exactly one group.
func Partition(tasks []Task, markers []string) (marked, rest []Task) {
	if len(markers) == 0 {
		return nil, tasks
	}
	for _, t := range tasks {
		line := t.Command.String()
		matched := false
		for _, marker := range markers {
			if marker != "" && strings.Contains(line, marker) {
				matched = true
				break
			}
		}
		if matched {
			marked = append(marked, t)
		} else {
			rest = append(rest, t)
		}
	}
	return marked, rest
}
