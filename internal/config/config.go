package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/vidbuf/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "VIDBUF_"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadConfig fills opts (a pointer to a flat struct) with precedence
// CLI flag > environment > TOML file > defaults already in opts.
//
// The file path is read from a string field named Config. Fields map to
// the file through `toml:"section.key"` and to the environment through
// `env:"KEY"` (read as VIDBUF_KEY). Flags marked changed on cmd are left
// alone. A missing file is not an error; a malformed one is.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: expected pointer to struct, got %T", opts)
	}
	v = v.Elem()
	t := v.Type()

	changed := changedFlags(cmd)

	var file map[string]any
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String && f.String() != "" {
		data, err := os.ReadFile(f.String())
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("failed to parse TOML config %s: %w", f.String(), err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("failed to read config %s: %w", f.String(), err)
		}
	}

	var errs []error
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() || changed[fieldNameToFlag(fieldType.Name)] {
			continue
		}

		if tomlPath := fieldType.Tag.Get("toml"); tomlPath != "" && file != nil {
			if value := getNestedValue(file, tomlPath); value != nil {
				if err := setFieldValue(field, value); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", tomlPath, err))
				}
			}
		}

		if envKey := fieldType.Tag.Get("env"); envKey != "" {
			if envValue, ok := os.LookupEnv(EnvPrefix + envKey); ok && envValue != "" {
				if err := setFieldValueFromString(field, envValue); err != nil {
					errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, envKey, err))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	visit := func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	}
	cmd.Flags().VisitAll(visit)
	cmd.PersistentFlags().VisitAll(visit)
	return changed
}

// fieldNameToFlag converts a struct field name to its CLI flag name:
// "MetricsAddr" -> "metrics-addr".
func fieldNameToFlag(fieldName string) string {
	var result []rune
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			result = append(result, '-')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// getNestedValue looks up a dotted path such as "capture.buffers".
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data
	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

// setFieldValue assigns a decoded TOML value.
func setFieldValue(field reflect.Value, value any) error {
	if field.Type() == durationType {
		switch d := value.(type) {
		case string:
			return setFieldValueFromString(field, d)
		case int64:
			field.SetInt(d * int64(time.Second))
			return nil
		}
		return fmt.Errorf("cannot use %T as duration", value)
	}

	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
			return nil
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i, ok := value.(int64); ok {
			if field.OverflowInt(i) {
				return fmt.Errorf("%d overflows %s", i, field.Type())
			}
			field.SetInt(i)
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if i, ok := value.(int64); ok {
			if i < 0 || field.OverflowUint(uint64(i)) {
				return fmt.Errorf("%d out of range for %s", i, field.Type())
			}
			field.SetUint(uint64(i))
			return nil
		}
	case reflect.Float32, reflect.Float64:
		switch f := value.(type) {
		case float64:
			field.SetFloat(f)
			return nil
		case int64:
			field.SetFloat(float64(f))
			return nil
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			break
		}
		arr, ok := value.([]any)
		if !ok {
			break
		}
		slice := make([]string, 0, len(arr))
		for _, item := range arr {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("list item %v is not a string", item)
			}
			slice = append(slice, s)
		}
		field.Set(reflect.ValueOf(slice))
		return nil
	}
	return fmt.Errorf("cannot use %T for %s field", value, field.Type())
}

// setFieldValueFromString assigns an environment value. Lists are comma separated.
func setFieldValueFromString(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported list type %s", field.Type())
		}
		parts := strings.Split(value, ",")
		slice := make([]string, len(parts))
		for i, part := range parts {
			slice[i] = strings.TrimSpace(part)
		}
		field.Set(reflect.ValueOf(slice))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

// LoadLoggingConfig reads the [logging] section of configPath. Module
// levels may be given as [logging.modules] or as plain keys next to level
// and format. Defaults are returned when the file is absent or unreadable.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
	if configPath == "" {
		return cfg
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var raw struct {
		Logging map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg
	}

	for key, value := range raw.Logging {
		switch v := value.(type) {
		case string:
			switch key {
			case "level":
				cfg.Level = v
			case "format":
				cfg.Format = v
			default:
				cfg.Modules[key] = v
			}
		case map[string]any:
			if key != "modules" {
				continue
			}
			for module, level := range v {
				if s, ok := level.(string); ok {
					cfg.Modules[module] = s
				}
			}
		}
	}
	return cfg
}
