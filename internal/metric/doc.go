// Package metric defines the value and policy types consumed by the
// calculation engine.
//
// Value wraps an arbitrary-precision decimal (cockroachdb/apd) together
// with a unit tag and the Policy it was produced under. Absence is a first
// class state: arithmetic on absent operands yields absent rather than
// panicking, so a chain of formulas degrades gracefully when a base input
// is unknown. Under a strict policy the propagated absent value also
// carries the cause, which the engine surfaces as a calculation failure.
//
// Policy is an immutable record (rounding, strictness, display
// preferences). The ambient policy for a call tree travels on a
// context.Context via WithAmbient/AmbientPolicy, so nested scopes restore
// on every exit path and never leak across goroutines.
package metric
