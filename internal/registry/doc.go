// Package registry stores calculation definitions: a unique name, the
// names of the inputs the calculation depends on, and the function that
// computes it.
//
// The registry is the only shared mutable resource in the system. Every
// read and write serializes through one mutex so concurrent resolutions
// always see a consistent snapshot. Registration is effectively
// append-only after process start-up; Unregister exists for tests and
// administrative tooling and repairs the graph by scrubbing the removed
// name from every remaining dependency set.
package registry
