package config

const (
	defaultResultsDir       = "~/phylobench/results"
	defaultTruthDir         = "~/phylobench/truth"
	defaultInputsDir        = "~/phylobench/inputs"
	defaultWebDir           = "~/phylobench/web"
	defaultLogDir           = "~/.local/share/phylobench/logs"
	defaultRunName          = "latest"
	defaultResultSuffix     = ".neutree.npz"
	defaultEvalWorkers      = 80
	defaultSlowWorkers      = 10
	defaultPostMethod       = "pairtree"
	defaultPostWorkers      = 40
	defaultPython           = "python3"
	defaultPublisher        = "rsync"
	defaultProgressInterval = 30
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

func defaultMetrics() []string {
	return []string{"mutphi", "mutdist", "mutrel"}
}

func defaultSlowMarkers() []string {
	return []string{"K30", "K100"}
}

func defaultRenderKinds() []string {
	return []string{"pairwise"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ResultsDir: defaultResultsDir,
			TruthDir:   defaultTruthDir,
			InputsDir:  defaultInputsDir,
			WebDir:     defaultWebDir,
			LogDir:     defaultLogDir,
		},
		Run: Run{
			Name: defaultRunName,
		},
		Eval: Eval{
			ResultSuffix: defaultResultSuffix,
			Metrics:      defaultMetrics(),
			Workers:      defaultEvalWorkers,
			SlowWorkers:  defaultSlowWorkers,
			SlowMarkers:  defaultSlowMarkers(),
		},
		Post: Post{
			Method:  defaultPostMethod,
			Workers: defaultPostWorkers,
			Render:  defaultRenderKinds(),
		},
		Tools: Tools{
			Python:    defaultPython,
			Publisher: defaultPublisher,
		},
		Dispatch: Dispatch{
			ProgressInterval: defaultProgressInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
