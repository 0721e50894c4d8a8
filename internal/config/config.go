package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directory roots the pipelines operate on.
type Paths struct {
	ResultsDir string `toml:"results_dir"`
	TruthDir   string `toml:"truth_dir"`
	InputsDir  string `toml:"inputs_dir"`
	WebDir     string `toml:"web_dir"`
	LogDir     string `toml:"log_dir"`
}

// Run contains the active run namespace used by the publish stage.
type Run struct {
	Name string `toml:"name"`
}

// Eval contains configuration for the metric evaluation pipeline.
type Eval struct {
	ResultSuffix   string   `toml:"result_suffix"`
	Methods        []string `toml:"methods"`
	ExcludeMethods []string `toml:"exclude_methods"`
	Metrics        []string `toml:"metrics"`
	Workers        int      `toml:"workers"`
	SlowWorkers    int      `toml:"slow_workers"`
	SlowMarkers    []string `toml:"slow_markers"`
}

// Post contains configuration for the post-processing pipeline.
type Post struct {
	Method  string   `toml:"method"`
	Workers int      `toml:"workers"`
	Render  []string `toml:"render"`
}

// Tools contains the external programs the pipelines shell out to.
type Tools struct {
	Python     string `toml:"python"`
	ScriptsDir string `toml:"scripts_dir"`
	Publisher  string `toml:"publisher"`
}

// Dispatch contains knobs for the task dispatcher.
type Dispatch struct {
	ShuffleSeed      int64 `toml:"shuffle_seed"`
	ProgressInterval int   `toml:"progress_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for phylobench.
//
// Configuration sections by subsystem:
//   - Paths: results/truth/inputs/web/log directory roots
//   - Run: run namespace published under the web directory
//   - Eval: metric evaluation pipeline (suffix, method filters, worker pools)
//   - Post: post-processing pipeline (target method, workers, render kinds)
//   - Tools: python interpreter, analysis script directory, publisher binary
//   - Dispatch: task shuffle seed and progress reporting interval
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Run      Run      `toml:"run"`
	Eval     Eval     `toml:"eval"`
	Post     Post     `toml:"post"`
	Tools    Tools    `toml:"tools"`
	Dispatch Dispatch `toml:"dispatch"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/phylobench/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/phylobench/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("phylobench.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories phylobench itself writes to.
// The web directory is created on a best-effort basis so commands can run
// when the publish target is temporarily unavailable. Results, truth, and
// inputs roots are produced by the benchmark runs themselves and are never
// created here.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.LogDir, err)
	}
	if strings.TrimSpace(c.Paths.WebDir) != "" {
		_ = os.MkdirAll(c.Paths.WebDir, 0o755)
	}
	return nil
}

// PythonBinary returns the Python interpreter used to run analysis scripts.
func (c *Config) PythonBinary() string {
	return c.Tools.Python
}

// PublisherBinary returns the program used by the publish stage.
func (c *Config) PublisherBinary() string {
	return c.Tools.Publisher
}

// ScriptPath returns the absolute path of a named analysis script.
func (c *Config) ScriptPath(name string) string {
	return filepath.Join(c.Tools.ScriptsDir, name)
}

// LedgerPath returns the location of the SQLite batch ledger.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.LogDir, "ledger.db")
}

// LockPath returns the location of the per-results-tree run lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.ResultsDir, ".phylobench.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
