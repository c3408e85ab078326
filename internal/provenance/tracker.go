package provenance

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mboyd/reckon/internal/metric"
)

// Clock is a monotonic logical counter stamping lineage records. Record
// order within the process is defined by this sequence, never by
// wall-clock time.
//
// Thread-safety: safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// IDGenerator produces record IDs. Implemented by UUIDGenerator
// (production) and testutil.SequentialIDs (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator generates random UUIDs.
type UUIDGenerator struct{}

// Generate returns a new random UUID string.
func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

// Tracker implements the engine's Recorder hook on top of a Store. One
// Tracker serves one logical evaluation scope; EvalID groups its records.
type Tracker struct {
	store  *Store
	clock  *Clock
	ids    IDGenerator
	evalID string
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock substitutes the sequence clock (tests).
func WithClock(c *Clock) TrackerOption {
	return func(t *Tracker) { t.clock = c }
}

// WithIDGenerator substitutes the record ID generator (tests).
func WithIDGenerator(g IDGenerator) TrackerOption {
	return func(t *Tracker) { t.ids = g }
}

// NewTracker creates a Tracker writing to store under a fresh evaluation
// ID.
func NewTracker(store *Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:  store,
		clock:  NewClock(),
		ids:    UUIDGenerator{},
		evalID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// EvalID returns the evaluation ID grouping this tracker's records.
func (t *Tracker) EvalID() string {
	return t.evalID
}

// Record writes one lineage record. Satisfies engine.Recorder; the engine
// treats failures as best-effort and never lets them affect results.
func (t *Tracker) Record(ctx context.Context, name string, result metric.Value, inputs map[string]metric.Value) error {
	rec := Record{
		ID:     t.ids.Generate(),
		EvalID: t.evalID,
		Target: name,
		Absent: result.IsAbsent(),
		Unit:   result.Unit(),
		Inputs: make(map[string]string, len(inputs)),
		Seq:    t.clock.Next(),
	}
	if !result.IsAbsent() && !result.IsSeries() {
		rec.Result = result.Decimal().Text('f')
	}
	for dep, v := range inputs {
		if v.IsAbsent() || v.IsSeries() {
			rec.Inputs[dep] = ""
			continue
		}
		rec.Inputs[dep] = v.Decimal().Text('f')
	}
	return t.store.WriteRecord(ctx, rec)
}
