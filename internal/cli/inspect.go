package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/arwahdevops/dbtyper/internal/typing"
)

// planOutput is one stream in `dbtyper plan`.
type planOutput struct {
	Stream string                          `json:"stream"`
	Status typing.DestinationInitialStatus `json:"status"`
	Steps  []planStep                      `json:"steps"`
}

type planStep struct {
	Step         typing.Step `json:"step"`
	Transactions [][]string  `json:"transactions"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	var withSQL bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the steps and SQL a sync would run, without running them",
		Long: `Inspect each stream and print, as JSON, the steps the next sync would
execute. With --sql the generated statements are included, grouped by
transaction.

The destination is prepared (namespaces and state table are created) because
reading stream state requires them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := commandContext(cmd)
			defer stop()

			a, err := bootstrap(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			var out []planOutput
			var errs error
			for _, s := range a.streams {
				p, err := a.reconciler.Explain(ctx, s)
				if err != nil {
					errs = multierr.Append(errs, err)
					continue
				}
				po := planOutput{Stream: s.ID.String(), Status: p.Status, Steps: make([]planStep, 0, len(p.Steps))}
				for i, step := range p.Steps {
					ps := planStep{Step: step}
					if withSQL {
						ps.Transactions = p.SQL[i].Transactions
					}
					po.Steps = append(po.Steps, ps)
				}
				out = append(out, po)
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if errs != nil {
				return WrapExitError(ExitFailure, "failed to plan some streams", errs)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withSQL, "sql", false, "include generated SQL")
	return cmd
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the inspected destination status of every stream as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := commandContext(cmd)
			defer stop()

			a, err := bootstrap(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			statuses, gatherErr := a.reconciler.GatherInitialState(ctx, a.streams)
			if err := writeJSON(cmd.OutOrStdout(), statuses); err != nil {
				return err
			}
			if gatherErr != nil {
				return WrapExitError(ExitFailure, "failed to inspect some streams", gatherErr)
			}
			return nil
		},
	}
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Flag streams for a soft reset on their next sync",
		Long: `Mark the selected streams (--streams, or all streams in the catalog) so
the next sync rebuilds their final tables from the full raw history. Nothing
is rebuilt by this command itself.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := commandContext(cmd)
			defer stop()

			a, err := bootstrap(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.reconciler.RequestSoftReset(ctx, a.streams); err != nil {
				return WrapExitError(ExitFailure, "failed to flag some streams", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "soft reset requested for %d stream(s)\n", len(a.streams))
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
