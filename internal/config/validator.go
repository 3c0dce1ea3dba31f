package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the offending field names in order.
func (e *ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		fields = append(fields, err.Field)
	}
	return fields
}

// ConfigError is returned for every plan that cannot be loaded. It is fatal:
// no traffic is sent once a ConfigError is seen.
type ConfigError struct {
	// Path is the plan file, empty for programmatic plans
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "invalid benchmark plan: " + e.Err.Error()
	}
	return fmt.Sprintf("invalid benchmark plan %s: %s", e.Path, e.Err.Error())
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Validate checks the plan invariants.
//
// Returns nil if valid, or a ValidationErrors containing every problem.
func (p *Plan) Validate() error {
	errs := &ValidationErrors{}

	if len(p.Stages) == 0 {
		errs.Add("stages", "at least one stage is required")
	}
	for i, stage := range p.Stages {
		prefix := fmt.Sprintf("stages[%d]", i)
		if stage.Concurrency <= 0 {
			errs.Add(prefix+".concurrency", "concurrency must be greater than 0")
		}
		if stage.Duration <= 0 {
			errs.Add(prefix+".duration", "duration must be greater than 0")
		}
	}

	validateSettings(&p.Settings, errs)

	if len(p.Targets) == 0 {
		errs.Add("targets", "at least one target is required")
	}
	seen := make(map[string]int, len(p.Targets))
	for i, target := range p.Targets {
		prefix := fmt.Sprintf("targets[%d]", i)
		validateTarget(prefix, &target, &p.Settings, errs)

		if target.Name == "" {
			continue
		}
		if first, dup := seen[target.Name]; dup {
			errs.Add(prefix+".name", fmt.Sprintf("duplicate target name %q (already used by targets[%d])", target.Name, first))
			continue
		}
		seen[target.Name] = i
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateSettings(s *Settings, errs *ValidationErrors) {
	if s.Protocol != "" && s.Protocol != "http" && s.Protocol != "https" {
		errs.Add("settings.protocol", "only http and https protocols are supported")
	}
	if s.Timeout < 0 {
		errs.Add("settings.timeout", "timeout must not be negative")
	}
	if s.RequestDelay < 0 {
		errs.Add("settings.request_delay", "request_delay must not be negative")
	}
}

func validateTarget(prefix string, t *Target, settings *Settings, errs *ValidationErrors) {
	if strings.TrimSpace(t.Name) == "" {
		errs.Add(prefix+".name", "name is required")
	}

	if t.BaseURL == "" {
		errs.Add(prefix+".base_url", "base_url is required")
	} else if u, err := url.Parse(t.BaseURL); err != nil {
		errs.Add(prefix+".base_url", fmt.Sprintf("invalid URL: %v", err))
	} else {
		if u.Scheme != "http" && u.Scheme != "https" {
			errs.Add(prefix+".base_url", fmt.Sprintf("unsupported scheme %q", u.Scheme))
		} else if settings.Protocol != "" && u.Scheme != settings.Protocol {
			errs.Add(prefix+".base_url", fmt.Sprintf("scheme %q does not match protocol %q", u.Scheme, settings.Protocol))
		}
		if u.Host == "" {
			errs.Add(prefix+".base_url", "host is required")
		}
	}

	if t.Timeout <= 0 {
		errs.Add(prefix+".timeout", "timeout must be greater than 0")
	}
	if t.Method == "" {
		errs.Add(prefix+".method", "method is required")
	}
}
