package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "100ms" or "1m30s". Plain integers are read as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := unmarshal(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }
