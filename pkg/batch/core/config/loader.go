package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const moduleName = "config"

// EnvPrefix prefixes every environment variable that overrides a configuration value.
// app.batch.chunk_size is overridden by CHUNKBATCH_APP_BATCH_CHUNK_SIZE.
const EnvPrefix = "CHUNKBATCH_"

// LoadConfig loads configuration from defaults, the embedded YAML and environment variables,
// in that order of precedence (later wins). Placeholders such as ${DB_PASSWORD} in the YAML
// are expanded by expander before parsing; a nil expander uses OsEnvironmentExpander.
//
// The returned configuration has been validated.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}
	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}

	cfg := NewConfig()

	expanded, err := expander.Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to expand environment placeholders", err)
	}
	// Unmarshalling onto the defaults keeps every key the YAML does not mention.
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to unmarshal embedded config", err)
	}
	cfg.EmbeddedConfig = embeddedConfig
	if cfg.App.AdaptorConfigs == nil {
		cfg.App.AdaptorConfigs = make(map[string]interface{})
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), EnvPrefix); err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to load config from environment variables", err)
	}
	loadAdaptorConfigsFromEnv(cfg.App.AdaptorConfigs, EnvPrefix+"APP_ADAPTOR_")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// It uses the "yaml" tag to determine the environment variable name.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadAdaptorConfigsFromEnv overrides flat adaptor settings.
// CHUNKBATCH_APP_ADAPTOR_DATABASE_METADATA_PASSWORD=secret sets
// app.adaptor.database.metadata.password. Only adaptors declared in the YAML are touched.
func loadAdaptorConfigsFromEnv(adaptors map[string]interface{}, prefix string) {
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(parts) != 2 {
			continue
		}
		path := strings.SplitN(parts[0], "_", 3)
		if len(path) != 3 {
			continue
		}
		kind, name, key := strings.ToLower(path[0]), strings.ToLower(path[1]), strings.ToLower(path[2])

		byName, ok := adaptors[kind].(map[string]interface{})
		if !ok {
			continue
		}
		entry, ok := byName[name].(map[string]interface{})
		if !ok {
			continue
		}
		entry[key] = parts[1]
	}
}

// setField sets the value of a reflect.Value field based on its kind.
// It handles string, int, float, and bool types.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	}
	return nil
}
