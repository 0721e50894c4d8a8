package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"phylobench/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ResultsDir = filepath.Join(base, "results")
	cfgVal.Paths.TruthDir = filepath.Join(base, "truth")
	cfgVal.Paths.InputsDir = filepath.Join(base, "inputs")
	cfgVal.Paths.WebDir = filepath.Join(base, "web")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Tools.ScriptsDir = filepath.Join(base, "scripts")

	for _, dir := range []string{cfgVal.Paths.ResultsDir, cfgVal.Paths.LogDir, cfgVal.Tools.ScriptsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithShuffleSeed fixes the dispatch shuffle for deterministic ordering.
func WithShuffleSeed(seed int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dispatch.ShuffleSeed = seed
	}
}

// WithSlowMarkers overrides the slow-partition markers on the test config.
func WithSlowMarkers(markers ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Eval.SlowMarkers = markers
	}
}

// WithStubbedTools writes succeeding python and rsync stubs, prepends them to
// PATH, and points the config at them. The python stub touches every argument
// following --out, --out-ssm, or --out-params; the rsync stub copies with cp.
// Each invocation is appended to the log returned by ToolLog.
func WithStubbedTools() ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		log := filepath.Join(binDir, "invocations.log")

		python := fmt.Sprintf(`#!/bin/sh
printf '%%s\n' "python3 $*" >> %q
prev=""
for arg in "$@"; do
    case "$prev" in
    --out|--out-ssm|--out-params)
        mkdir -p "$(dirname "$arg")"
        : > "$arg"
        ;;
    esac
    prev="$arg"
done
exit 0
`, log)
		writeStub(b.t, filepath.Join(binDir, "python3"), python)

		rsync := fmt.Sprintf(`#!/bin/sh
printf '%%s\n' "rsync $*" >> %q
src="$2"
dst="$3"
mkdir -p "$dst"
case "$src" in
*/) cp -R "$src." "$dst" ;;
*) cp "$src" "$dst" ;;
esac
exit 0
`, log)
		writeStub(b.t, filepath.Join(binDir, "rsync"), rsync)

		b.cfg.Tools.Python = "python3"
		b.cfg.Tools.Publisher = "rsync"
		prependPath(b.t, binDir)
	}
}

// WithFailingScript makes the python stub exit nonzero whenever the invoked
// script path contains name. Apply after WithStubbedTools.
func WithFailingScript(name string, exitCode int) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		log := filepath.Join(binDir, "invocations.log")
		python := fmt.Sprintf(`#!/bin/sh
printf '%%s\n' "python3 $*" >> %q
case "$1" in
*%s*)
    echo "stub failure for %s" >&2
    exit %d
    ;;
esac
prev=""
for arg in "$@"; do
    case "$prev" in
    --out|--out-ssm|--out-params)
        mkdir -p "$(dirname "$arg")"
        : > "$arg"
        ;;
    esac
    prev="$arg"
done
exit 0
`, log, name, name, exitCode)
		writeStub(b.t, filepath.Join(binDir, "python3"), python)
	}
}

// ToolLog reads the stub invocation log, one command line per entry.
func ToolLog(t testing.TB, cfg *config.Config) []string {
	t.Helper()
	path := filepath.Join(BaseDir(cfg), "bin", "invocations.log")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read tool log: %v", err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ResultsDir)
}

func writeStub(t testing.TB, path, script string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", path, err)
	}
}

func prependPath(t testing.TB, dir string) {
	t.Helper()
	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}
