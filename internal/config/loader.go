package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where the driver looks for a plan when --config is not given.
const DefaultConfigPath = "benchmark/config.toml"

//go:embed plan.schema.json
var planSchema string

// Format identifies the encoding of a plan file.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the plan format from the file extension.
// Unknown extensions are treated as TOML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatTOML
	}
}

// Load reads, decodes and validates the plan at path.
//
// Every failure is returned as a *ConfigError.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("failed to read config file: %w", err)}
	}

	plan, err := Parse(data, FormatFromPath(path))
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
			return nil, cfgErr
		}
		return nil, &ConfigError{Path: path, Err: err}
	}
	return plan, nil
}

// Parse decodes and validates plan data in the given format.
//
// The document goes through four steps: decode into a generic tree,
// translate the historical [test] layout, check the tree against the
// embedded JSON schema, then decode into typed fields and validate the
// plan invariants.
func Parse(data []byte, format Format) (*Plan, error) {
	doc, err := decodeDocument(data, format)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	if err := translateLegacy(doc); err != nil {
		return nil, &ConfigError{Err: err}
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to normalize config: %w", err)}
	}

	if err := validateDocument(normalized); err != nil {
		return nil, &ConfigError{Err: err}
	}

	var fc fileConfig
	if err := json.Unmarshal(normalized, &fc); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to decode config: %w", err)}
	}

	plan := buildPlan(&fc)
	if err := plan.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	return plan, nil
}

// decodeDocument decodes data into a generic map.
func decodeDocument(data []byte, format Format) (map[string]interface{}, error) {
	doc := make(map[string]interface{})

	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	}

	if doc == nil {
		doc = make(map[string]interface{})
	}
	return doc, nil
}

// validateDocument checks the normalized JSON document against the plan schema.
func validateDocument(normalized []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("plan.schema.json", strings.NewReader(planSchema)); err != nil {
		return fmt.Errorf("invalid plan schema: %w", err)
	}
	schema, err := compiler.Compile("plan.schema.json")
	if err != nil {
		return fmt.Errorf("invalid plan schema: %w", err)
	}

	var instance interface{}
	if err := json.NewDecoder(bytes.NewReader(normalized)).Decode(&instance); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	err = schema.Validate(instance)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err
	}

	errs := &ValidationErrors{}
	collectSchemaErrors(verr, errs)
	if !errs.HasErrors() {
		errs.Add(pointerToField(verr.InstanceLocation), verr.Message)
	}
	return errs
}

// collectSchemaErrors flattens the leaves of a schema validation error tree.
func collectSchemaErrors(err *jsonschema.ValidationError, errs *ValidationErrors) {
	if len(err.Causes) == 0 {
		errs.Add(pointerToField(err.InstanceLocation), err.Message)
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, errs)
	}
}

// pointerToField turns a JSON pointer such as /targets/0/name into targets[0].name.
func pointerToField(pointer string) string {
	parts := strings.Split(strings.TrimPrefix(pointer, "/"), "/")

	var sb strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		if _, err := strconv.Atoi(part); err == nil {
			sb.WriteString("[" + part + "]")
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(part)
	}
	return sb.String()
}

// buildPlan converts decoded file fields into a Plan, applying defaults.
func buildPlan(fc *fileConfig) *Plan {
	settings := Settings{
		Method:   strings.ToUpper(fc.Settings.Method),
		Protocol: strings.ToLower(fc.Settings.Protocol),
		Timeout:  DefaultTimeout,
	}
	if settings.Method == "" {
		settings.Method = DefaultMethod
	}
	if fc.Settings.Timeout != nil {
		settings.Timeout = time.Duration(*fc.Settings.Timeout)
	}
	if fc.Settings.RequestDelay != nil {
		settings.RequestDelay = time.Duration(*fc.Settings.RequestDelay)
	}

	plan := &Plan{
		Name:     fc.Name,
		Settings: settings,
		Stages:   make([]Stage, 0, len(fc.Stages)),
		Targets:  make([]Target, 0, len(fc.Targets)),
	}

	for _, s := range fc.Stages {
		plan.Stages = append(plan.Stages, Stage{
			Concurrency: s.Concurrency,
			Duration:    time.Duration(s.Duration),
			Name:        s.Name,
		})
	}

	for _, t := range fc.Targets {
		target := Target{
			Name:    t.Name,
			BaseURL: t.BaseURL,
			Path:    DefaultRequestPath,
			Method:  strings.ToUpper(t.Method),
			Timeout: settings.Timeout,
			Headers: t.Headers,
		}
		if t.Path != nil {
			target.Path = *t.Path
		}
		if target.Method == "" {
			target.Method = settings.Method
		}
		if t.Timeout != nil {
			target.Timeout = time.Duration(*t.Timeout)
		}
		plan.Targets = append(plan.Targets, target)
	}

	return plan
}

// translateLegacy rewrites the historical orchestration layout in place:
//
//	[test]
//	request = "GET"
//	protocol = "http"
//	min_clients = 10
//	max_clients = 100
//	stage_interval_s = 30
//	stage_count = 3
//	request_delay_ms = 0
//	request_timeout_ms = 1000
//
//	[[targets]]
//	name = "nginx"
//	url = "http://localhost:8081/"
//
// The [test] table becomes settings plus derived stages (unless stages are
// given explicitly) and each target url is split into base_url and path.
func translateLegacy(doc map[string]interface{}) error {
	errs := &ValidationErrors{}

	if rawTest, ok := doc["test"]; ok {
		test, ok := rawTest.(map[string]interface{})
		if !ok {
			return &ValidationError{Field: "test", Message: "must be a table"}
		}
		translateTestSection(doc, test, errs)
		delete(doc, "test")
	}

	if targets, ok := doc["targets"].([]interface{}); ok {
		for i, raw := range targets {
			target, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			translateLegacyTarget(fmt.Sprintf("targets[%d]", i), target, errs)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func translateTestSection(doc, test map[string]interface{}, errs *ValidationErrors) {
	settings, _ := doc["settings"].(map[string]interface{})
	if settings == nil {
		settings = make(map[string]interface{})
	}

	if v, ok := test["request"].(string); ok {
		if _, set := settings["method"]; !set {
			settings["method"] = strings.ToUpper(v)
		}
	}
	if v, ok := test["protocol"].(string); ok {
		if _, set := settings["protocol"]; !set {
			settings["protocol"] = strings.ToLower(v)
		}
	}

	timeoutMS := legacyNumber(test, "request_timeout_ms", 1000, errs)
	if _, set := settings["timeout"]; !set {
		settings["timeout"] = millis(timeoutMS).String()
	}
	delayMS := legacyNumber(test, "request_delay_ms", 0, errs)
	if _, set := settings["request_delay"]; !set && delayMS > 0 {
		settings["request_delay"] = millis(delayMS).String()
	}
	doc["settings"] = settings

	if _, hasStages := doc["stages"]; hasStages {
		return
	}

	minClients := legacyNumber(test, "min_clients", 1, errs)
	maxClients := legacyNumber(test, "max_clients", 1, errs)
	interval := legacyNumber(test, "stage_interval_s", 10, errs)
	count := legacyNumber(test, "stage_count", 5, errs)

	stages := DeriveStages(int(minClients), int(maxClients), int(count), time.Duration(interval*float64(time.Second)))
	list := make([]interface{}, 0, len(stages))
	for _, s := range stages {
		list = append(list, map[string]interface{}{
			"concurrency": s.Concurrency,
			"duration":    s.Duration.String(),
		})
	}
	doc["stages"] = list
}

func translateLegacyTarget(prefix string, target map[string]interface{}, errs *ValidationErrors) {
	raw, ok := target["url"]
	if !ok {
		return
	}
	delete(target, "url")

	if _, set := target["base_url"]; set {
		return
	}

	s, ok := raw.(string)
	if !ok {
		errs.Add(prefix+".url", "must be a string")
		return
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs.Add(prefix+".url", fmt.Sprintf("invalid URL %q", s))
		return
	}

	target["base_url"] = u.Scheme + "://" + u.Host
	if _, set := target["path"]; !set {
		path := u.EscapedPath()
		if path == "" {
			path = "/"
		}
		if u.RawQuery != "" {
			path += "?" + u.RawQuery
		}
		target["path"] = path
	}
}

// DeriveStages reproduces the historical ramp: count stages of equal length
// whose concurrency is linearly interpolated from min to max clients.
func DeriveStages(minClients, maxClients, count int, interval time.Duration) []Stage {
	if count <= 1 {
		return []Stage{{Concurrency: maxClients, Duration: interval}}
	}

	step := float64(maxClients-minClients) / float64(count-1)
	stages := make([]Stage, 0, count)
	for i := 0; i < count; i++ {
		concurrency := int(math.RoundToEven(float64(minClients) + step*float64(i)))
		if concurrency < 1 {
			concurrency = 1
		}
		stages = append(stages, Stage{Concurrency: concurrency, Duration: interval})
	}
	return stages
}

// legacyNumber reads a numeric field from the [test] table.
func legacyNumber(test map[string]interface{}, key string, def float64, errs *ValidationErrors) float64 {
	raw, ok := test[key]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	errs.Add("test."+key, "must be a number")
	return def
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
