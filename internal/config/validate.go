package config

import (
	"errors"
	"fmt"
	"strings"
)

var knownMetrics = map[string]struct{}{
	"mutphi":  {},
	"mutdist": {},
	"mutrel":  {},
}

var knownRenderKinds = map[string]struct{}{
	"pairwise": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRun(); err != nil {
		return err
	}
	if err := c.validateEval(); err != nil {
		return err
	}
	if err := c.validatePost(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	for key, dir := range map[string]string{
		"paths.results_dir": c.Paths.ResultsDir,
		"paths.truth_dir":   c.Paths.TruthDir,
		"paths.inputs_dir":  c.Paths.InputsDir,
		"paths.web_dir":     c.Paths.WebDir,
		"paths.log_dir":     c.Paths.LogDir,
	} {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("%s must be set", key)
		}
	}
	return nil
}

func (c *Config) validateRun() error {
	if c.Run.Name == "" {
		return errors.New("run.name must be set")
	}
	if strings.ContainsAny(c.Run.Name, "/\\") {
		return errors.New("run.name must not contain path separators")
	}
	return nil
}

func (c *Config) validateEval() error {
	if !strings.HasPrefix(c.Eval.ResultSuffix, ".") {
		return fmt.Errorf("eval.result_suffix must start with a dot, got %q", c.Eval.ResultSuffix)
	}
	if len(c.Eval.Metrics) == 0 {
		return errors.New("eval.metrics must include at least one metric")
	}
	for _, metric := range c.Eval.Metrics {
		if _, ok := knownMetrics[metric]; !ok {
			return fmt.Errorf("eval.metrics: unknown metric %q", metric)
		}
	}
	return ensurePositiveMap(map[string]int{
		"eval.workers":      c.Eval.Workers,
		"eval.slow_workers": c.Eval.SlowWorkers,
	})
}

func (c *Config) validatePost() error {
	if c.Post.Method == "" {
		return errors.New("post.method must be set")
	}
	for _, kind := range c.Post.Render {
		if _, ok := knownRenderKinds[kind]; !ok {
			return fmt.Errorf("post.render: unknown render kind %q", kind)
		}
	}
	return ensurePositiveMap(map[string]int{
		"post.workers": c.Post.Workers,
	})
}

func (c *Config) validateTools() error {
	if c.Tools.Python == "" {
		return errors.New("tools.python must be set")
	}
	if c.Tools.Publisher == "" {
		return errors.New("tools.publisher must be set")
	}
	if c.Tools.ScriptsDir == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/phylobench/config.toml"
		}
		return fmt.Errorf("tools.scripts_dir is required. Set PHYLOBENCH_SCRIPTS env var or edit %s (create with 'phylobench config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateDispatch() error {
	return ensurePositiveMap(map[string]int{
		"dispatch.progress_interval": c.Dispatch.ProgressInterval,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
