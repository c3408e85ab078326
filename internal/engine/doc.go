// Package engine implements the metric resolution engine.
//
// The engine is the heart of reckon - given a set of requested targets and
// a caller-supplied context of already-known values, it resolves exactly
// the subset of the registered calculation graph needed to produce them.
//
// ARCHITECTURE:
//
// Recursive memoized depth-first resolution:
// Each Evaluate/EvaluateMany call owns a private cache and an explicit
// stack of in-progress names. Resolution of a name proceeds:
//  1. Cache hit -> done (a function runs at most once per call).
//  2. Name already on the stack -> circular dependency, hard abort.
//  3. Name in the supplied context -> coerce and cache (context entries
//     deliberately shadow same-named registrations).
//  4. Unregistered name -> soft "unresolved" (a missing base input).
//  5. Registered -> resolve dependencies with the stack extended, then
//     invoke the function under the name's effective policy.
//
// Soft vs hard failures:
// "Unresolved" is expected control flow, represented as a plain boolean,
// never an error. Circular dependencies, coercion failures, and (in
// fail-fast mode) function errors are hard errors that abort the whole
// batch. When fail-fast resolution ends with unresolved targets, a second
// diagnostic pass walks the registry to separate genuinely missing base
// inputs from supplied-but-invalid ones and reports both in one
// MissingInputError.
//
// Concurrency:
// Resolution is fully synchronous, single-threaded per call. Concurrent
// calls are safe because no resolution state is shared between calls; the
// registry is the only shared resource and guards itself.
package engine
