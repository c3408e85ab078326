package harness

import (
	"context"
	"sync"

	"github.com/mboyd/reckon/internal/metric"
)

// TraceEvent is one recorded computation: a registered calculation, the
// value it produced, and the inputs it consumed, stamped with a logical
// sequence number.
type TraceEvent struct {
	Seq    int64             `json:"seq"`
	Target string            `json:"target"`
	Result string            `json:"result"`
	Absent bool              `json:"absent,omitempty"`
	Unit   string            `json:"unit,omitempty"`
	Inputs map[string]string `json:"inputs"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	Pass bool `json:"pass"`

	// Values holds the rendered result per resolved target.
	Values map[string]string `json:"values"`

	// Trace contains every recorded computation in resolution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Values: make(map[string]string),
		Trace:  []TraceEvent{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// traceRecorder is an in-memory engine.Recorder capturing the evaluation
// trace. Resolution is single-threaded per call, but the mutex keeps the
// recorder safe if a scenario is ever run concurrently.
type traceRecorder struct {
	mu     sync.Mutex
	seq    int64
	events []TraceEvent
}

func (t *traceRecorder) Record(_ context.Context, name string, result metric.Value, inputs map[string]metric.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	ev := TraceEvent{
		Seq:    t.seq,
		Target: name,
		Absent: result.IsAbsent(),
		Unit:   result.Unit(),
		Inputs: make(map[string]string, len(inputs)),
	}
	if !result.IsAbsent() && !result.IsSeries() {
		ev.Result = result.Decimal().Text('f')
	}
	for dep, v := range inputs {
		if v.IsAbsent() || v.IsSeries() {
			ev.Inputs[dep] = ""
			continue
		}
		ev.Inputs[dep] = v.Decimal().Text('f')
	}
	t.events = append(t.events, ev)
	return nil
}
