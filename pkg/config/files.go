package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// UnmatchedTomlKeysError errors are returned by the Load function when
// ErrorOnUnmatchedKeys is set to true and there are unmatched keys in the input
// toml cfg file. The string returned by Error() contains the names of the
// missing keys.
type UnmatchedTomlKeysError struct {
	Keys []toml.Key
}

func (e *UnmatchedTomlKeysError) Error() string {
	return fmt.Sprintf("There are keys in the config file that do not match any field in the given struct: %v", e.Keys)
}

// envFile returns "config.production.yml" for ("config.yml", "production").
func envFile(file, env string) string {
	ext := path.Ext(file)
	if ext == "" {
		return file + "." + env
	}
	return strings.TrimSuffix(file, ext) + "." + env + ext
}

func isFile(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.Mode().IsRegular()
}

func (c *Config) getConfigurationFiles(files ...string) []string {
	var result []string

	if c.Debug || c.Verbose {
		c.Logger.Debug("current environment", zap.String("env", c.GetEnvironment()))
	}

	for i := len(files) - 1; i >= 0; i-- {
		file := files[i]
		found := false

		if isFile(file) {
			found = true
			result = append(result, file)
		}

		if f := envFile(file, c.GetEnvironment()); isFile(f) {
			found = true
			result = append(result, f)
		}

		if !found {
			if example := envFile(file, "example"); isFile(example) {
				if c.Verbose {
					c.Logger.Debug("using example configuration", zap.String("file", file), zap.String("example", example))
				}
				result = append(result, example)
			} else if c.Verbose {
				c.Logger.Debug("configuration file not found", zap.String("file", file))
			}
		}
	}
	return result
}

func processFile(cfg interface{}, file string, errorOnUnmatchedKeys bool) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	switch {
	case strings.HasSuffix(file, ".yaml") || strings.HasSuffix(file, ".yml"):
		return unmarshalYAML(data, cfg, errorOnUnmatchedKeys)
	case strings.HasSuffix(file, ".toml"):
		return unmarshalToml(data, cfg, errorOnUnmatchedKeys)
	case strings.HasSuffix(file, ".json"):
		return unmarshalJSON(data, cfg, errorOnUnmatchedKeys)
	default:
		if err := unmarshalToml(data, cfg, errorOnUnmatchedKeys); err == nil {
			return nil
		} else if errUnmatchedKeys, ok := err.(*UnmatchedTomlKeysError); ok {
			return errUnmatchedKeys
		}

		if err := unmarshalJSON(data, cfg, errorOnUnmatchedKeys); err == nil {
			return nil
		} else if strings.Contains(err.Error(), "json: unknown field") {
			return err
		}

		if err := unmarshalYAML(data, cfg, errorOnUnmatchedKeys); err == nil {
			return nil
		} else if yErr, ok := err.(*yaml.TypeError); ok {
			return yErr
		}

		return errors.New("failed to decode config")
	}
}

func unmarshalYAML(data []byte, cfg interface{}, errorOnUnmatchedKeys bool) error {
	if errorOnUnmatchedKeys {
		return yaml.UnmarshalStrict(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

func unmarshalToml(data []byte, cfg interface{}, errorOnUnmatchedKeys bool) error {
	metadata, err := toml.Decode(string(data), cfg)
	if err == nil && len(metadata.Undecoded()) > 0 && errorOnUnmatchedKeys {
		return &UnmatchedTomlKeysError{Keys: metadata.Undecoded()}
	}
	return err
}

// unmarshalJSON unmarshals the given data into the cfg interface.
// If the errorOnUnmatchedKeys boolean is true, an error will be returned if there
// are keys in the data that do not match fields in the cfg interface.
func unmarshalJSON(data []byte, cfg interface{}, errorOnUnmatchedKeys bool) error {
	decoder := json.NewDecoder(bytes.NewReader(data))

	if errorOnUnmatchedKeys {
		decoder.DisallowUnknownFields()
	}

	err := decoder.Decode(cfg)
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}
