package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mboyd/reckon/internal/provenance"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	DBPath string
}

// traceRecord is the JSON payload for one lineage record.
type traceRecord struct {
	Seq    int64             `json:"seq"`
	EvalID string            `json:"eval_id"`
	Result string            `json:"result"`
	Absent bool              `json:"absent,omitempty"`
	Unit   string            `json:"unit,omitempty"`
	Inputs map[string]string `json:"inputs"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{}

	cmd := &cobra.Command{
		Use:   "trace <target>",
		Short: "Show recorded lineage for a metric",
		Long: `Read the provenance database written by "eval --db" and print every
recorded computation of the given metric: the produced value and the
named inputs it was derived from, in sequence order.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "SQLite provenance database (required)")
	cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(rootOpts *RootOptions, opts *TraceOptions, target string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	store, err := provenance.Open(opts.DBPath)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening provenance store", err)
	}
	defer store.Close()

	records, err := store.ReadLineage(cmd.Context(), target)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading lineage", err)
	}

	data := make([]traceRecord, len(records))
	lines := []string{fmt.Sprintf("%d record(s) for %s", len(records), target)}
	for i, rec := range records {
		data[i] = traceRecord{
			Seq:    rec.Seq,
			EvalID: rec.EvalID,
			Result: rec.Result,
			Absent: rec.Absent,
			Unit:   rec.Unit,
			Inputs: rec.Inputs,
		}
		lines = append(lines, fmt.Sprintf("  seq=%d %s = %s  from %s",
			rec.Seq, target, renderResult(rec), renderInputs(rec.Inputs)))
	}
	return formatter.SuccessText(lines, data)
}

func renderResult(rec provenance.Record) string {
	if rec.Absent {
		return "absent"
	}
	if rec.Unit != "" {
		return rec.Result + " " + rec.Unit
	}
	return rec.Result
}

func renderInputs(inputs map[string]string) string {
	if len(inputs) == 0 {
		return "(no inputs)"
	}
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + inputs[name]
	}
	return strings.Join(parts, " ")
}
