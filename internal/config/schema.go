// Package config loads and validates lbbench benchmark plans.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when the plan file leaves a value out.
const (
	DefaultMethod      = "GET"
	DefaultRequestPath = "/"
	DefaultTimeout     = time.Second
)

// Plan is the validated, read-only benchmark plan.
//
// A plan is created once at startup and shared by every component without
// further mutation. Use ApplyOverrides to derive a modified copy.
type Plan struct {
	// Name of the benchmark (for reporting)
	Name string

	// Settings are defaults shared by all targets
	Settings Settings

	// Stages is the ordered ramp applied to every target
	Stages []Stage

	// Targets are benchmarked one after another in this order
	Targets []Target
}

// Settings holds plan-wide request defaults.
type Settings struct {
	// Method is the default HTTP method
	Method string

	// Protocol, when set, must match every target's URL scheme
	Protocol string

	// Timeout is the default per-request timeout
	Timeout time.Duration

	// RequestDelay is the minimum spacing between request starts of one worker
	RequestDelay time.Duration
}

// Stage is one window of the ramp during which Concurrency workers
// continuously issue requests.
type Stage struct {
	Concurrency int
	Duration    time.Duration
	Name        string
}

// Label returns the stage name, or a positional label when unnamed.
func (s Stage) Label(index int) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("stage %d", index+1)
}

// Target is one load-balancer endpoint under test.
type Target struct {
	Name    string
	BaseURL string
	Path    string
	Method  string
	Timeout time.Duration
	Headers map[string]string
}

// URL joins the base URL and request path.
func (t Target) URL() string {
	base := strings.TrimRight(t.BaseURL, "/")
	if t.Path == "" {
		return base + "/"
	}
	if strings.HasPrefix(t.Path, "?") {
		return base + "/" + t.Path
	}
	return base + "/" + strings.TrimLeft(t.Path, "/")
}

// TotalDuration returns the sum of all stage durations.
func (p *Plan) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range p.Stages {
		total += s.Duration
	}
	return total
}

// MaxConcurrency returns the highest stage concurrency.
func (p *Plan) MaxConcurrency() int {
	max := 0
	for _, s := range p.Stages {
		if s.Concurrency > max {
			max = s.Concurrency
		}
	}
	return max
}

// Target returns the target with the given name.
func (p *Plan) Target(name string) (Target, bool) {
	for _, t := range p.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}

// fileConfig mirrors the on-disk plan after historical fields have been
// translated. It is decoded from the schema-checked document.
type fileConfig struct {
	Name     string       `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Settings fileSettings `json:"settings,omitempty" yaml:"settings,omitempty" toml:"settings,omitempty"`
	Stages   []fileStage  `json:"stages" yaml:"stages" toml:"stages"`
	Targets  []fileTarget `json:"targets" yaml:"targets" toml:"targets"`
}

type fileSettings struct {
	Method       string    `json:"method,omitempty" yaml:"method,omitempty" toml:"method,omitempty"`
	Protocol     string    `json:"protocol,omitempty" yaml:"protocol,omitempty" toml:"protocol,omitempty"`
	Timeout      *Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	RequestDelay *Duration `json:"request_delay,omitempty" yaml:"request_delay,omitempty" toml:"request_delay,omitempty"`
}

type fileStage struct {
	Concurrency int      `json:"concurrency" yaml:"concurrency" toml:"concurrency"`
	Duration    Duration `json:"duration" yaml:"duration" toml:"duration"`
	Name        string   `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
}

type fileTarget struct {
	Name    string            `json:"name" yaml:"name" toml:"name"`
	BaseURL string            `json:"base_url" yaml:"base_url" toml:"base_url"`
	Path    *string           `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty" toml:"method,omitempty"`
	Timeout *Duration         `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" toml:"headers,omitempty"`
}

// Duration is a time.Duration that decodes from a Go duration string
// ("30s", "1m30s"), an integer string ("30", seconds) or a number (seconds).
type Duration time.Duration

// ParseDurationString parses a duration string.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case nil:
		*d = 0
	case string:
		dur, err := ParseDurationString(v)
		if err != nil {
			return err
		}
		*d = Duration(dur)
	case float64:
		*d = Duration(v * float64(time.Second))
	default:
		return fmt.Errorf("invalid duration value: %s", string(b))
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
