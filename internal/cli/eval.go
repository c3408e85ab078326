package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mboyd/reckon/internal/engine"
	"github.com/mboyd/reckon/internal/format"
	"github.com/mboyd/reckon/internal/formulas"
	"github.com/mboyd/reckon/internal/metric"
	"github.com/mboyd/reckon/internal/provenance"
	"github.com/mboyd/reckon/internal/registry"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	ContextPath string
	Partial     bool
	DBPath      string
	Places      int32
}

// evalResult is the per-target JSON payload.
type evalResult struct {
	Value  string `json:"value"`
	Unit   string `json:"unit,omitempty"`
	Absent bool   `json:"absent,omitempty"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{}

	cmd := &cobra.Command{
		Use:   "eval <target>...",
		Short: "Evaluate metrics against a context file",
		Long: `Evaluate one or more named metrics against the built-in calculation
graph, using base inputs loaded from a CUE context file.

By default evaluation is fail-fast: any unresolvable target reports every
missing or invalid base input and exits non-zero. With --partial the
command prints whatever subset resolved.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(rootOpts, opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ContextPath, "context", "c", "", "CUE file with base inputs (required)")
	cmd.Flags().BoolVar(&opts.Partial, "partial", false, "best-effort mode: omit unresolvable targets instead of failing")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "SQLite path for provenance records")
	cmd.Flags().Int32Var(&opts.Places, "places", 2, "decimal places for results")
	cmd.MarkFlagRequired("context")

	return cmd
}

func runEval(rootOpts *RootOptions, opts *EvalOptions, targets []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	inputs, err := LoadContext(opts.ContextPath)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			formatter.Error(loadErr.Code, loadErr.Message, nil)
		} else {
			formatter.Error(ErrCodeLoadFailed, err.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "context load failed", err)
	}
	formatter.VerboseLog("Loaded %d base inputs from %s", len(inputs), opts.ContextPath)

	reg := registry.New()
	if err := formulas.RegisterBuiltins(reg); err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "registering builtins", err)
	}

	engineOpts := []engine.Option{}
	pol := metric.DefaultPolicy()
	pol.Places = opts.Places
	engineOpts = append(engineOpts, engine.WithDefaultPolicy(pol))

	if opts.DBPath != "" {
		store, err := provenance.Open(opts.DBPath)
		if err != nil {
			formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "opening provenance store", err)
		}
		defer store.Close()
		tracker := provenance.NewTracker(store)
		engineOpts = append(engineOpts, engine.WithRecorder(tracker))
		formatter.VerboseLog("Recording provenance to %s (eval %s)", opts.DBPath, tracker.EvalID())
	}

	eng := engine.New(reg, engineOpts...)

	evalOpts := []engine.EvalOption{}
	if opts.Partial {
		evalOpts = append(evalOpts, engine.WithPartial())
	}

	results, err := eng.EvaluateMany(cmd.Context(), targets, inputs, evalOpts...)
	if err != nil {
		return outputEvalError(formatter, err)
	}

	f := &format.Formatter{}
	data := make(map[string]evalResult, len(results))
	var lines []string
	for _, target := range targets {
		v, ok := results[target]
		if !ok {
			lines = append(lines, fmt.Sprintf("%-24s (unresolved)", target))
			continue
		}
		res := evalResult{Unit: v.Unit(), Absent: v.IsAbsent()}
		if !v.IsAbsent() && !v.IsSeries() {
			res.Value = v.Decimal().Text('f')
		}
		data[target] = res
		lines = append(lines, fmt.Sprintf("%-24s %s", target, f.Format(v)))
	}
	return formatter.SuccessText(lines, data)
}

// outputEvalError maps engine errors onto CLI error codes and exit codes.
func outputEvalError(formatter *OutputFormatter, err error) error {
	var (
		circ *engine.CircularError
		calc *engine.CalculationError
		miss *engine.MissingInputError
	)
	switch {
	case errors.As(err, &circ):
		formatter.Error(ErrCodeCycle, circ.Error(), map[string]any{"cycle": circ.Cycle})
		return WrapExitError(ExitFailure, "circular dependency", err)
	case errors.As(err, &miss):
		details := map[string]any{"targets": miss.Targets}
		if len(miss.Missing) > 0 {
			details["missing"] = miss.Missing
		}
		if len(miss.Invalid) > 0 {
			details["invalid"] = miss.Invalid
		}
		formatter.Error(ErrCodeMissing, miss.Error(), details)
		return WrapExitError(ExitFailure, "unresolvable targets", err)
	case errors.As(err, &calc):
		formatter.Error(ErrCodeCalc, calc.Error(), nil)
		return WrapExitError(ExitFailure, "calculation failed", err)
	default:
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "evaluation failed", err)
	}
}
