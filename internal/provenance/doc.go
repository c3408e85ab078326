// Package provenance records calculation lineage: which inputs, with
// which values, produced each computed metric.
//
// The store is SQLite in WAL mode with a single writer connection. Every
// record carries the evaluation it belongs to, a monotonic sequence
// number within the process, the produced value, and the resolved inputs
// serialized as sorted-key JSON.
//
// Tracker adapts the store to the engine's Recorder hook. Recording is
// strictly best-effort from the engine's point of view: a failed write
// never aborts or alters a calculation.
package provenance
