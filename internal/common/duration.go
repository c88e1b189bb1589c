package common

import (
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
)

// Duration is a wrapper around time.Duration that can be decoded from
// human readable strings ("30s", "500ms") in YAML, JSON and TOML configs.
type Duration struct {
	time.Duration
}

// NewDuration returns a Duration wrapper.
func NewDuration(duration time.Duration) Duration {
	return Duration{Duration: duration}
}

// UnmarshalText unmarshals a duration from text.
func (d *Duration) UnmarshalText(data []byte) error {
	duration, err := time.ParseDuration(string(data))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(data), err)
	}
	d.Duration = duration

	return nil
}

// MarshalText marshals the duration back into its string form.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// JSONSchema returns a custom schema to be used for the JSON Schema generation of this type.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Title:       "Duration",
		Description: "Duration expressed in units: [ns, us (or µs), ms, s, m, h]",
		Examples: []any{
			"1m",
			"300ms",
		},
	}
}
