package config

import (
	"fmt"
	"strconv"
)

// ListValues returns the flattened key/value view of cfg. With mask set,
// secret values are shown as "***xxxx".
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := cfg.ToMap()
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue loads the config at path and returns the value for the
// dot-separated key. Secret values come back masked.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	flat, err := ListValues(cfg, true)
	if err != nil {
		return nil, err
	}
	val, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key %q", key)
	}
	return val, nil
}

// SetValue loads the config at path, sets the dot-separated key to value,
// and saves the result. The value is coerced to the most specific type it
// parses as (bool, int, float, string).
func SetValue(path, key, value string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	m, err := cfg.ToMap()
	if err != nil {
		return err
	}
	flat := Flatten(m)
	if _, ok := flat[key]; !ok {
		return fmt.Errorf("unknown config key %q", key)
	}

	flat[key] = coerce(value)
	if err := cfg.FromMap(Unflatten(flat)); err != nil {
		return err
	}
	return Save(path, cfg)
}

func coerce(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	return s
}
