package main

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/rowflow/rowflow"
	"github.com/rowflow/rowflow/services/logging"
	"github.com/rowflow/rowflow/services/metrics"
	"github.com/rowflow/rowflow/services/runlog"
)

// Config represents the configuration format for the rowflow binary.
type Config struct {
	Logging logging.Config `toml:"logging"`
	Engine  EngineConfig   `toml:"engine"`
	RunLog  runlog.Config  `toml:"runlog"`
	Metrics metrics.Config `toml:"metrics"`
}

type EngineConfig struct {
	// DefaultEdgeCapacity is the number of rows buffered by hops without an explicit capacity.
	DefaultEdgeCapacity int `toml:"default-edge-capacity"`
}

func (c EngineConfig) Validate() error {
	if c.DefaultEdgeCapacity <= 0 {
		return fmt.Errorf("engine 'default-edge-capacity' must be > 0, got %d", c.DefaultEdgeCapacity)
	}
	return nil
}

// NewConfig returns an instance of Config with reasonable defaults.
func NewConfig() *Config {
	return &Config{
		Logging: logging.NewConfig(),
		Engine: EngineConfig{
			DefaultEdgeCapacity: rowflow.DefaultEdgeCapacity,
		},
		RunLog:  runlog.NewConfig(),
		Metrics: metrics.NewConfig(),
	}
}

// LoadConfig decodes the TOML file at path over the defaults and applies environment overrides.
// An empty path only applies the overrides.
func LoadConfig(path string) (*Config, error) {
	c := NewConfig()
	if path != "" {
		md, err := toml.DecodeFile(path, c)
		if err != nil {
			return nil, errors.Wrapf(err, "parse config %q", path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config %q has unknown options: %s", path, strings.Join(keys, ", "))
		}
	}
	if err := c.ApplyEnvOverrides(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return c, nil
}

// Validate returns an error if the config is invalid.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.RunLog.Validate(); err != nil {
		return err
	}
	return c.Metrics.Validate()
}

// ApplyEnvOverrides sets every option named ROWFLOW_<SECTION>_<KEY> in the environment.
// Hyphens in option names become underscores.
func (c *Config) ApplyEnvOverrides(getenv func(string) string) error {
	return applyEnvOverrides(getenv, "ROWFLOW", "", reflect.ValueOf(c))
}

func applyEnvOverrides(getenv func(string) string, prefix, fieldDesc string, v reflect.Value) error {
	s := v
	if v.Kind() == reflect.Ptr {
		s = v.Elem()
	}

	if s.Kind() == reflect.Struct {
		return applyEnvOverridesToStruct(getenv, prefix, s)
	}

	value := getenv(prefix)
	if value == "" {
		return nil
	}
	fail := func() error {
		return fmt.Errorf("failed to apply %v to %v using type %v and value '%v'", prefix, fieldDesc, s.Type().String(), value)
	}

	switch s.Kind() {
	case reflect.String:
		s.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(value, 0, s.Type().Bits())
		if err != nil {
			return fail()
		}
		s.SetInt(i)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fail()
		}
		s.SetBool(b)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, s.Type().Bits())
		if err != nil {
			return fail()
		}
		s.SetFloat(f)
	}
	return nil
}

func applyEnvOverridesToStruct(getenv func(string) string, prefix string, s reflect.Value) error {
	typ := s.Type()
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		if !f.CanSet() {
			continue
		}
		configName := strings.Replace(typ.Field(i).Tag.Get("toml"), "-", "_", -1)
		key := strings.ToUpper(prefix + "_" + configName)
		if err := applyEnvOverrides(getenv, key, typ.Field(i).Name, f); err != nil {
			return err
		}
	}
	return nil
}
