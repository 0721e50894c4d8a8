package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeTools(); err != nil {
		return err
	}
	c.normalizeRun()
	c.normalizeEval()
	c.normalizePost()
	c.normalizeDispatch()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ResultsDir, err = expandPath(c.Paths.ResultsDir); err != nil {
		return fmt.Errorf("paths.results_dir: %w", err)
	}
	if c.Paths.TruthDir, err = expandPath(c.Paths.TruthDir); err != nil {
		return fmt.Errorf("paths.truth_dir: %w", err)
	}
	if c.Paths.InputsDir, err = expandPath(c.Paths.InputsDir); err != nil {
		return fmt.Errorf("paths.inputs_dir: %w", err)
	}
	if c.Paths.WebDir, err = expandPath(c.Paths.WebDir); err != nil {
		return fmt.Errorf("paths.web_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTools() error {
	c.Tools.Python = strings.TrimSpace(c.Tools.Python)
	if c.Tools.Python == "" {
		c.Tools.Python = defaultPython
	}
	c.Tools.Publisher = strings.TrimSpace(c.Tools.Publisher)
	if c.Tools.Publisher == "" {
		c.Tools.Publisher = defaultPublisher
	}
	c.Tools.ScriptsDir = strings.TrimSpace(c.Tools.ScriptsDir)
	if c.Tools.ScriptsDir == "" {
		if value, ok := os.LookupEnv("PHYLOBENCH_SCRIPTS"); ok {
			c.Tools.ScriptsDir = strings.TrimSpace(value)
		}
	}
	if c.Tools.ScriptsDir != "" {
		expanded, err := expandPath(c.Tools.ScriptsDir)
		if err != nil {
			return fmt.Errorf("tools.scripts_dir: %w", err)
		}
		c.Tools.ScriptsDir = expanded
	}
	return nil
}

func (c *Config) normalizeRun() {
	c.Run.Name = strings.TrimSpace(c.Run.Name)
	if c.Run.Name == "" {
		c.Run.Name = defaultRunName
	}
}

func (c *Config) normalizeEval() {
	c.Eval.ResultSuffix = strings.TrimSpace(c.Eval.ResultSuffix)
	if c.Eval.ResultSuffix == "" {
		c.Eval.ResultSuffix = defaultResultSuffix
	}
	c.Eval.Methods = dedupeNames(c.Eval.Methods)
	c.Eval.ExcludeMethods = dedupeNames(c.Eval.ExcludeMethods)
	metrics := normalizeNames(c.Eval.Metrics)
	if len(metrics) == 0 {
		metrics = defaultMetrics()
	}
	c.Eval.Metrics = metrics
	if c.Eval.Workers <= 0 {
		c.Eval.Workers = defaultEvalWorkers
	}
	if c.Eval.SlowWorkers <= 0 {
		c.Eval.SlowWorkers = defaultSlowWorkers
	}
	markers := make([]string, 0, len(c.Eval.SlowMarkers))
	for _, marker := range c.Eval.SlowMarkers {
		trimmed := strings.TrimSpace(marker)
		if trimmed == "" {
			continue
		}
		markers = append(markers, trimmed)
	}
	c.Eval.SlowMarkers = markers
}

func (c *Config) normalizePost() {
	c.Post.Method = strings.TrimSpace(c.Post.Method)
	if c.Post.Method == "" {
		c.Post.Method = defaultPostMethod
	}
	if c.Post.Workers <= 0 {
		c.Post.Workers = defaultPostWorkers
	}
	render := normalizeNames(c.Post.Render)
	if len(render) == 0 {
		render = defaultRenderKinds()
	}
	c.Post.Render = render
}

func (c *Config) normalizeDispatch() {
	if c.Dispatch.ProgressInterval <= 0 {
		c.Dispatch.ProgressInterval = defaultProgressInterval
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// normalizeNames lowercases, trims, and deduplicates a name list, preserving
// first-seen order. Used for metric and render kinds, which are canonical
// lowercase identifiers.
func normalizeNames(values []string) []string {
	if len(values) == 0 {
		return values
	}
	names := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.ToLower(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		names = append(names, normalized)
	}
	return names
}

// dedupeNames trims and deduplicates a name list without changing case.
// Method names map to directories on disk, so case is significant.
func dedupeNames(values []string) []string {
	if len(values) == 0 {
		return values
	}
	names := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		names = append(names, trimmed)
	}
	return names
}
