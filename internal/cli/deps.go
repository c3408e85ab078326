package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mboyd/reckon/internal/engine"
	"github.com/mboyd/reckon/internal/formulas"
	"github.com/mboyd/reckon/internal/registry"
)

// depsData is the JSON payload of the deps command.
type depsData struct {
	Target     string   `json:"target"`
	Calculated []string `json:"calculated"`  // registered calculations
	BaseInputs []string `json:"base_inputs"` // expected from context
}

// NewDepsCommand creates the deps command.
func NewDepsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps <target>",
		Short: "Show the transitive dependencies of a metric",
		Long: `Walk the calculation graph from a metric and list everything it
depends on, separating derived calculations from the base inputs the
caller must supply in the evaluation context.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeps(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runDeps(rootOpts *RootOptions, target string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	reg := registry.New()
	if err := formulas.RegisterBuiltins(reg); err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "registering builtins", err)
	}
	eng := engine.New(reg)

	deps, err := eng.TransitiveDependencies(target)
	if err != nil {
		var circ *engine.CircularError
		switch {
		case errors.As(err, &circ):
			formatter.Error(ErrCodeCycle, circ.Error(), map[string]any{"cycle": circ.Cycle})
			return WrapExitError(ExitFailure, "circular dependency", err)
		case errors.Is(err, registry.ErrNotFound):
			formatter.Error(ErrCodeGeneric, fmt.Sprintf("unknown metric %q", target), nil)
			return WrapExitError(ExitCommandError, "unknown metric", err)
		default:
			formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitFailure, "dependency walk failed", err)
		}
	}

	data := depsData{Target: target, Calculated: []string{}, BaseInputs: []string{}}
	for _, dep := range deps {
		if reg.Contains(dep) {
			data.Calculated = append(data.Calculated, dep)
		} else {
			data.BaseInputs = append(data.BaseInputs, dep)
		}
	}

	lines := []string{fmt.Sprintf("%s depends on:", target)}
	for _, dep := range data.Calculated {
		lines = append(lines, fmt.Sprintf("  %s (calculated)", dep))
	}
	for _, dep := range data.BaseInputs {
		lines = append(lines, fmt.Sprintf("  %s (base input)", dep))
	}
	return formatter.SuccessText(lines, data)
}
