// Package config loads a configuration struct from YAML, TOML or JSON files
// and environment variables.
//
// Fields are filled in this order, later sources winning:
//
//  1. `default:"..."` struct tags, for fields still blank
//  2. the files given to Load, the last file first, each followed by its
//     environment variant (config.yml then config.production.yml)
//  3. environment variables, named by `env:"..."` tags or derived from the
//     prefix and the field path (CAL_ADAPTER_STORE_DRIVER)
//
// A `required:"true"` field that is still blank fails the load.
package config

import (
	"fmt"
	"os"
	"reflect"
	"regexp"

	"go.uber.org/zap"
)

type Config struct {
	*Settings
}

type Settings struct {
	// Environment selects the environment file variant. Empty reads CONFIG_ENV,
	// then falls back to "test" under go test and "development" otherwise.
	Environment string
	// ENVPrefix prefixes derived environment variable names. "-" disables the
	// prefix.
	ENVPrefix string
	Debug     bool
	Verbose   bool

	// ErrorOnUnmatchedKeys rejects file keys that match no field.
	ErrorOnUnmatchedKeys bool

	// Logger receives Debug and Verbose output. Nil discards it.
	Logger *zap.Logger
}

// New initialize a Config
func New(s *Settings) *Config {
	if s == nil {
		s = &Settings{}
	}

	if os.Getenv("CONFIG_DEBUG_MODE") != "" {
		s.Debug = true
	}

	if os.Getenv("CONFIG_VERBOSE_MODE") != "" {
		s.Verbose = true
	}

	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}

	return &Config{Settings: s}
}

var testRegexp = regexp.MustCompile(`_test|(\.test$)`)

// GetEnvironment get environment
func (c *Config) GetEnvironment() string {
	if c.Environment == "" {
		if env := os.Getenv("CONFIG_ENV"); env != "" {
			return env
		}

		if testRegexp.MatchString(os.Args[0]) {
			return "test"
		}

		return "development"
	}
	return c.Environment
}

// Load will unmarshal configurations to struct from files that you provide
func (c *Config) Load(cfg interface{}, files ...string) (err error) {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config %T should be a pointer to a struct", cfg)
	}

	defer func() {
		if c.Debug || c.Verbose {
			if err != nil {
				c.Logger.Debug("failed to load configuration", zap.Strings("files", files), zap.Error(err))
			}
			c.Logger.Debug("configuration loaded", zap.Any("config", cfg))
		}
	}()

	if err := c.processDefaults(cfg); err != nil {
		return err
	}

	for _, file := range c.getConfigurationFiles(files...) {
		if c.Debug || c.Verbose {
			c.Logger.Debug("loading configuration file", zap.String("file", file))
		}
		if err := processFile(cfg, file, c.ErrorOnUnmatchedKeys); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
	}

	if prefix := c.getENVPrefix(); prefix != "-" {
		return c.processTags(cfg, prefix)
	}
	return c.processTags(cfg)
}

// Load will unmarshal configurations to struct from files that you provide
func Load(cfg interface{}, files ...string) (*Config, error) {
	c := New(nil)
	if err := c.Load(cfg, files...); err != nil {
		return nil, err
	}

	return c, nil
}
