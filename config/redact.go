package config

import (
	"fmt"
	"reflect"

	"github.com/goccy/go-yaml"
)

// RedactedValue is the placeholder string used for redacted secrets.
const RedactedValue = "[REDACTED]"

// RedactConfig returns a deep copy of cfg with all string fields tagged
// `redact:"true"` replaced by RedactedValue. The original cfg is not mutated.
func RedactConfig(cfg *Config) (*Config, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("redact: marshal failed: %w", err)
	}
	var cp Config
	if err := yaml.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("redact: unmarshal failed: %w", err)
	}
	redactFields(reflect.ValueOf(&cp).Elem())
	return &cp, nil
}

// redactFields walks a struct value and sets every non-empty string field
// tagged `redact:"true"` to RedactedValue. Header maps usually carry
// credentials, so their values are always redacted.
func redactFields(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := v.Field(i)
		sf := t.Field(i)
		switch f.Kind() {
		case reflect.String:
			if sf.Tag.Get("redact") == "true" && f.String() != "" {
				f.SetString(RedactedValue)
			}
		case reflect.Struct:
			redactFields(f)
		case reflect.Map:
			if sf.Name != "Headers" || f.IsNil() || f.Type().Elem().Kind() != reflect.String {
				continue
			}
			for _, k := range f.MapKeys() {
				f.SetMapIndex(k, reflect.ValueOf(RedactedValue))
			}
		}
	}
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
