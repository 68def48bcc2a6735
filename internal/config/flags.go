package config

import "flag"

var (
	flagConfig = flag.String("config", "", "Path to config file (.yaml or .toml)")
	flagDebug  = flag.Bool("debug", false, "Enable debug logging")
	flagOut    = flag.String("out", "", "Output directory (default: next to each input)")
	flagStrict = flag.Bool("strict", false, "Fail the whole file when any object fails")
	flagFixed  = flag.Bool("fixed", false, "Write coordinates with four decimal places")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the non-flag arguments.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagOut != "" {
		cfg.Output.Dir = *flagOut
	}
	if *flagStrict {
		cfg.Conversion.OnObjectError = "abort"
	}
	if *flagFixed {
		cfg.Output.Precision = "fixed"
	}
}
