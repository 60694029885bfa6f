package config

import (
	"errors"
	"os"
	"reflect"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

func (c *Config) getENVPrefix() string {
	if c.ENVPrefix == "" {
		if prefix := os.Getenv("CONFIG_ENV_PREFIX"); prefix != "" {
			return prefix
		}
		return "CONFIG"
	}
	return c.ENVPrefix
}

func getPrefixForStruct(prefixes []string, fieldStruct *reflect.StructField) []string {
	if fieldStruct.Anonymous && fieldStruct.Tag.Get("anonymous") == "true" {
		return prefixes
	}
	return append(prefixes, fieldStruct.Name)
}

// processDefaults fills blank fields from their default tag, the value being
// decoded as YAML.
func (c *Config) processDefaults(cfg interface{}) error {
	cfgValue := reflect.Indirect(reflect.ValueOf(cfg))
	if cfgValue.Kind() != reflect.Struct {
		return errors.New("invalid config, should be struct")
	}

	cfgType := cfgValue.Type()
	for i := 0; i < cfgType.NumField(); i++ {
		fieldStruct := cfgType.Field(i)
		field := cfgValue.Field(i)

		if !field.CanAddr() || !field.CanInterface() {
			continue
		}

		if value := fieldStruct.Tag.Get("default"); value != "" && field.IsZero() {
			if err := yaml.Unmarshal([]byte(value), field.Addr().Interface()); err != nil {
				return err
			}
		}

		for field.Kind() == reflect.Ptr {
			if field.IsNil() {
				break
			}
			field = field.Elem()
		}

		switch field.Kind() {
		case reflect.Struct:
			if err := c.processDefaults(field.Addr().Interface()); err != nil {
				return err
			}
		case reflect.Slice:
			for i := 0; i < field.Len(); i++ {
				if reflect.Indirect(field.Index(i)).Kind() == reflect.Struct {
					if err := c.processDefaults(field.Index(i).Addr().Interface()); err != nil {
						return err
					}
				}
			}
		}
	}

	return nil
}

// processTags applies environment overrides and enforces required tags.
func (c *Config) processTags(cfg interface{}, prefixes ...string) error {
	cfgValue := reflect.Indirect(reflect.ValueOf(cfg))
	if cfgValue.Kind() != reflect.Struct {
		return errors.New("invalid config, should be struct")
	}

	cfgType := cfgValue.Type()
	for i := 0; i < cfgType.NumField(); i++ {
		var (
			envNames    []string
			fieldStruct = cfgType.Field(i)
			field       = cfgValue.Field(i)
			envName     = fieldStruct.Tag.Get("env")
		)

		if !field.CanAddr() || !field.CanInterface() {
			continue
		}

		if envName == "" {
			name := strings.Join(append(prefixes, fieldStruct.Name), "_")
			envNames = []string{name, strings.ToUpper(name)} // Config_DB_Name, CONFIG_DB_NAME
		} else {
			envNames = []string{envName}
		}

		if c.Verbose {
			c.Logger.Debug("looking up field in env", zap.String("field", fieldStruct.Name), zap.Strings("env", envNames))
		}

		for _, env := range envNames {
			value, ok := os.LookupEnv(env)
			if !ok || value == "" {
				continue
			}
			if c.Debug || c.Verbose {
				c.Logger.Debug("loading field from env", zap.String("field", fieldStruct.Name), zap.String("env", env))
			}
			if err := setFromEnv(field, value); err != nil {
				return err
			}
			break
		}

		if fieldStruct.Tag.Get("required") == "true" && field.IsZero() {
			return errors.New(fieldStruct.Name + " is required, but blank")
		}

		for field.Kind() == reflect.Ptr {
			if field.IsNil() {
				break
			}
			field = field.Elem()
		}

		switch field.Kind() {
		case reflect.Struct:
			if err := c.processTags(field.Addr().Interface(), getPrefixForStruct(prefixes, &fieldStruct)...); err != nil {
				return err
			}
		case reflect.Slice:
			for i := 0; i < field.Len(); i++ {
				if reflect.Indirect(field.Index(i)).Kind() == reflect.Struct {
					if err := c.processTags(field.Index(i).Addr().Interface(), append(getPrefixForStruct(prefixes, &fieldStruct), strconv.Itoa(i))...); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func setFromEnv(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.Bool:
		switch strings.ToLower(value) {
		case "0", "f", "false", "no", "off":
			field.SetBool(false)
		default:
			field.SetBool(true)
		}
	case reflect.String:
		field.SetString(value)
	default:
		return yaml.Unmarshal([]byte(value), field.Addr().Interface())
	}
	return nil
}
