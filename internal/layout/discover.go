package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Method groups the run ids discovered for one method, sorted for
// reproducible enumeration.
type Method struct {
	Name string
	Runs []string
}

// DiscoverMethods scans resultsDir for <method>/<run-id>/<run-id><suffix>
// entries. A run is reported only when its result filename stem matches the
// enclosing directory name. include, when non-empty, is an allowlist of
// method names; exclude always wins. A missing results directory yields an
// empty slice without error so callers can log a zero count and continue.
func DiscoverMethods(resultsDir, suffix string, include, exclude []string) ([]Method, error) {
	includeSet := nameSet(include)
	excludeSet := nameSet(exclude)

	rootEntries, err := os.ReadDir(resultsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list results dir: %w", err)
	}

	methods := make([]Method, 0, len(rootEntries))
	for _, entry := range rootEntries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		name := entry.Name()
		if len(includeSet) > 0 {
			if _, ok := includeSet[name]; !ok {
				continue
			}
		}
		if _, ok := excludeSet[name]; ok {
			continue
		}

		runs, err := discoverRuns(filepath.Join(resultsDir, name), suffix)
		if err != nil {
			return nil, err
		}
		methods = append(methods, Method{Name: name, Runs: runs})
	}

	sort.Slice(methods, func(i, j int) bool { return methods[i].Name < methods[j].Name })
	return methods, nil
}

func discoverRuns(methodDir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(methodDir)
	if err != nil {
		return nil, fmt.Errorf("list method dir %q: %w", methodDir, err)
	}

	runs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		runDir := filepath.Join(methodDir, entry.Name())
		files, err := os.ReadDir(runDir)
		if err != nil {
			return nil, fmt.Errorf("list run dir %q: %w", runDir, err)
		}
		for _, file := range files {
			if file.IsDir() {
				continue
			}
			runID, ok := RunIDFromResultPath(file.Name(), suffix)
			if !ok || runID != entry.Name() {
				continue
			}
			runs = append(runs, runID)
			break
		}
	}

	sort.Strings(runs)
	return runs, nil
}

func nameSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
