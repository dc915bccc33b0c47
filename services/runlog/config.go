package runlog

import "fmt"

type Config struct {
	Enabled bool `toml:"enabled"`
	// Path to a boltdb database file.
	Path string `toml:"path"`
	// MaxRuns is the number of runs kept, the oldest are dropped first. Zero keeps all runs.
	MaxRuns int `toml:"max-runs"`
}

func NewConfig() Config {
	return Config{
		Enabled: false,
		Path:    "./rowflow.db",
		MaxRuns: 1000,
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Path == "" {
		return fmt.Errorf("must specify run log 'path'")
	}
	if c.MaxRuns < 0 {
		return fmt.Errorf("run log 'max-runs' must be >= 0, got %d", c.MaxRuns)
	}
	return nil
}
