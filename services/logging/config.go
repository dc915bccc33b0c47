package logging

import (
	"fmt"
	"strings"
)

type Config struct {
	// File is STDERR, STDOUT or the path of a log file.
	File  string `toml:"file"`
	Level string `toml:"level"`
	// Encoding is json or console.
	Encoding string `toml:"encoding"`
}

func NewConfig() Config {
	return Config{
		File:     "STDERR",
		Level:    "INFO",
		Encoding: "json",
	}
}

func (c Config) Validate() error {
	if c.File == "" {
		return fmt.Errorf("must specify a log file, STDERR or STDOUT")
	}
	if _, err := parseLevel(c.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Encoding) {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log encoding %q", c.Encoding)
	}
	return nil
}
