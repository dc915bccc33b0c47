package metrics

import (
	"fmt"
	"strings"
)

type Config struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind-address"`
	Path        string `toml:"path"`
}

func NewConfig() Config {
	return Config{
		Enabled:     false,
		BindAddress: ":9108",
		Path:        "/metrics",
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.BindAddress == "" {
		return fmt.Errorf("must specify metrics 'bind-address'")
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("metrics 'path' must start with /, got %q", c.Path)
	}
	return nil
}
