package cli

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/mboyd/reckon/internal/engine"
)

// LoadError represents an error that occurred while loading a context
// file.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadContext reads a CUE file and converts its top-level fields into an
// evaluation context. Numbers become int64 or float64, quoted numeric
// strings are kept as strings (the engine coerces them exactly), and
// lists become []any series. Booleans and nested structs are rejected:
// the context is a flat name to value mapping.
func LoadContext(path string) (engine.Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading context file: %v", err)}
	}

	cctx := cuecontext.New()
	val := cctx.CompileBytes(data, cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("compiling %s: %v", path, err)}
	}

	iter, err := val.Fields()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("iterating fields of %s: %v", path, err)}
	}

	inputs := make(engine.Context)
	for iter.Next() {
		name := iter.Label()
		decoded, err := decodeField(iter.Value())
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("field %q: %v", name, err)}
		}
		inputs[name] = decoded
	}
	return inputs, nil
}

func decodeField(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, err
		}
		return n, nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, err
		}
		return s, nil
	case cue.NullKind:
		return nil, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, err
		}
		var items []any
		for iter.Next() {
			item, err := decodeField(iter.Value())
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", len(items), err)
			}
			items = append(items, item)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unsupported kind %s: context values must be numbers, strings, or lists", v.Kind())
	}
}
