package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"phylobench/internal/config"
	"phylobench/internal/deps"
)

// minFreeBytes is the floor below which the results filesystem is reported full.
const minFreeBytes = 1 << 30

// CheckDirectoryAccess verifies that the directory exists and is traversable.
// Roots the pipelines write into are additionally checked for write permission.
func CheckDirectoryAccess(name, path string, writable bool) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	mode := uint32(unix.R_OK | unix.X_OK)
	granted := "read ok"
	if writable {
		mode |= unix.W_OK
		granted = "read/write ok"
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, granted)}
}

// CheckDiskSpace reports free space on the filesystem holding the results tree.
func CheckDiskSpace(path string) Result {
	const name = "Disk space"

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	total := stat.Blocks * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free of %s", formatBytes(free), formatBytes(total))
	if free < minFreeBytes {
		return Result{Name: name, Detail: detail + " (results tree nearly full)"}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckTools reports availability of the external programs the pipelines invoke.
func CheckTools(ctx context.Context, cfg *config.Config) []Result {
	statuses := deps.CheckBinaries(ctx, deps.Requirements(cfg))
	results := make([]Result, 0, len(statuses))
	for _, status := range statuses {
		detail := status.Detail
		if detail == "" {
			detail = status.Command
		}
		results = append(results, Result{Name: status.Name, Passed: status.Available, Detail: detail})
	}
	return results
}

// CheckScripts verifies that every analysis script the configured pipelines
// invoke exists under the scripts directory.
func CheckScripts(cfg *config.Config) []Result {
	names := RequiredScripts(cfg)
	results := make([]Result, 0, len(names))
	for _, name := range names {
		path := cfg.ScriptPath(name)
		info, err := os.Stat(path)
		switch {
		case err != nil && os.IsNotExist(err):
			results = append(results, Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)})
		case err != nil:
			results = append(results, Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)})
		case info.IsDir():
			results = append(results, Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)})
		default:
			results = append(results, Result{Name: name, Passed: true, Detail: path})
		}
	}
	return results
}

// RequiredScripts returns every script the configured pipelines invoke:
// one per evaluation metric, the fixed post-processing stage scripts, and
// one plotter per configured render kind.
func RequiredScripts(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Eval.Metrics)+len(cfg.Post.Render)+5)
	for _, metric := range cfg.Eval.Metrics {
		names = append(names, metric+".py")
	}
	names = append(names, "rename_samples.py", "remove_samples.py", "calc_pairwise.py")
	for _, kind := range cfg.Post.Render {
		names = append(names, "plot_"+kind+".py")
	}
	names = append(names, "augment_index.py", "make_index.py")
	return names
}

func formatBytes(value uint64) string {
	const (
		kiB = 1024
		miB = kiB * 1024
		giB = miB * 1024
	)
	switch {
	case value >= giB:
		return fmt.Sprintf("%.2f GiB", float64(value)/float64(giB))
	case value >= miB:
		return fmt.Sprintf("%.2f MiB", float64(value)/float64(miB))
	case value >= kiB:
		return fmt.Sprintf("%.2f KiB", float64(value)/float64(kiB))
	default:
		return fmt.Sprintf("%d B", value)
	}
}
