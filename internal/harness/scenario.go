package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario defines one conformance test: a context, the targets to
// resolve, and the expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario; it also names the golden
	// file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Context is the base-input mapping supplied to the engine. YAML
	// scalars arrive as int/float64/string and are coerced by the engine.
	Context map[string]any `yaml:"context"`

	// Targets are the metrics to resolve, in order.
	Targets []string `yaml:"targets"`

	// Partial selects best-effort mode.
	Partial bool `yaml:"partial,omitempty"`

	// Places sets the engine default policy's decimal places.
	// Defaults to 2 when omitted.
	Places int32 `yaml:"places,omitempty"`

	// Expect maps target names to expected rendered decimals ("60.00"),
	// or the literal strings "absent" and "unresolved".
	Expect map[string]string `yaml:"expect,omitempty"`

	// ExpectError names the expected hard failure kind: "",
	// "missing_input", "cycle", or "calculation".
	ExpectError string `yaml:"expect_error,omitempty"`

	// ExpectMissing asserts the sorted missing-name payload of a
	// missing_input failure.
	ExpectMissing []string `yaml:"expect_missing,omitempty"`

	// ExpectInvalid asserts the invalid-name payload of a missing_input
	// failure.
	ExpectInvalid []string `yaml:"expect_invalid,omitempty"`
}

// LoadScenario reads and validates a single scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	s := &Scenario{Places: 2}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return s, nil
}

// LoadScenarios reads every *.yaml scenario under dir, sorted by filename
// for deterministic test order.
func LoadScenarios(dir string) ([]*Scenario, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scan scenarios in %s: %w", dir, err)
	}
	sort.Strings(matches)

	scenarios := make([]*Scenario, 0, len(matches))
	for _, path := range matches {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if len(s.Targets) == 0 {
		return fmt.Errorf("scenario must request at least one target")
	}
	switch s.ExpectError {
	case "", "missing_input", "cycle", "calculation":
	default:
		return fmt.Errorf("unknown expect_error %q", s.ExpectError)
	}
	if s.ExpectError != "" && len(s.Expect) > 0 {
		return fmt.Errorf("expect and expect_error are mutually exclusive")
	}
	return nil
}
