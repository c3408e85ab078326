package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot captures the complete outcome of a scenario execution for
// golden comparison. encoding/json emits map keys sorted, so snapshots
// serialize identically across runs.
type TraceSnapshot struct {
	ScenarioName string            `json:"scenario_name"`
	Targets      []string          `json:"targets"`
	Values       map[string]string `json:"values"`
	Trace        []TraceEvent      `json:"trace"`
}

// RunWithGolden executes a scenario and compares its trace snapshot
// against a golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) *Result {
	t.Helper()

	result, err := Run(s)
	if err != nil {
		t.Fatalf("scenario %s: %v", s.Name, err)
	}

	snapshot := TraceSnapshot{
		ScenarioName: s.Name,
		Targets:      s.Targets,
		Values:       result.Values,
		Trace:        result.Trace,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		t.Fatalf("scenario %s: marshal snapshot: %v", s.Name, err)
	}
	data = append(data, '\n')

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, s.Name, data)
	return result
}
