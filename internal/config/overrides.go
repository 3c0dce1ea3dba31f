package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Overrides are command-line adjustments applied on top of a loaded plan.
type Overrides struct {
	// Targets selects a subset of targets by name, in the given order
	Targets []string

	// Stages replaces the ramp, e.g. "30s:10,30s:50,30s:100"
	Stages string

	// Timeout replaces every target's request timeout when > 0
	Timeout time.Duration
}

// IsZero reports whether no override is set.
func (o Overrides) IsZero() bool {
	return len(o.Targets) == 0 && o.Stages == "" && o.Timeout == 0
}

// ApplyOverrides returns a copy of plan with the overrides applied.
// The given plan is left untouched.
func ApplyOverrides(plan *Plan, o Overrides) (*Plan, error) {
	out := &Plan{
		Name:     plan.Name,
		Settings: plan.Settings,
		Stages:   append([]Stage(nil), plan.Stages...),
		Targets:  append([]Target(nil), plan.Targets...),
	}

	if len(o.Targets) > 0 {
		selected := make([]Target, 0, len(o.Targets))
		for _, name := range o.Targets {
			t, ok := plan.Target(name)
			if !ok {
				return nil, &ConfigError{Err: &ValidationError{Field: "targets", Message: fmt.Sprintf("unknown target %q", name)}}
			}
			selected = append(selected, t)
		}
		out.Targets = selected
	}

	if o.Stages != "" {
		stages, err := ParseStages(o.Stages)
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		out.Stages = stages
	}

	if o.Timeout > 0 {
		for i := range out.Targets {
			out.Targets[i].Timeout = o.Timeout
		}
	}

	if err := out.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	return out, nil
}

// ParseStages parses a ramp in "duration:concurrency" form,
// e.g. "30s:10,30s:50,30s:100".
func ParseStages(s string) ([]Stage, error) {
	var stages []Stage
	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field := fmt.Sprintf("stages[%d]", i)

		durStr, concStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, &ValidationError{Field: field, Message: fmt.Sprintf("invalid stage %q, expected duration:concurrency", part)}
		}

		dur, err := ParseDurationString(durStr)
		if err != nil {
			return nil, &ValidationError{Field: field + ".duration", Message: err.Error()}
		}
		concurrency, err := strconv.Atoi(strings.TrimSpace(concStr))
		if err != nil {
			return nil, &ValidationError{Field: field + ".concurrency", Message: fmt.Sprintf("invalid concurrency %q", concStr)}
		}

		stages = append(stages, Stage{Concurrency: concurrency, Duration: dur})
	}

	if len(stages) == 0 {
		return nil, &ValidationError{Field: "stages", Message: "at least one stage is required"}
	}
	return stages, nil
}
