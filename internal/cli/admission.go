package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/engine"
)

// NewAdmissionCmd создаёт группу команд для расчёта допуска pipeline.
func NewAdmissionCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admission",
		Short: "Pipeline admission control",
	}
	cmd.AddCommand(newAdmissionStartableCmd(outputFn))
	return cmd
}

func newAdmissionStartableCmd(outputFn func() *Output) *cobra.Command {
	var concurrency, consumed, budget int

	cmd := &cobra.Command{
		Use:   "startable",
		Short: "How many members a pipeline may start now",
		RunE: func(cmd *cobra.Command, args []string) error {
			var maxBudget *int
			if cmd.Flags().Changed("budget") {
				maxBudget = &budget
			}

			n := engine.ComputeStartable(concurrency, consumed, maxBudget)

			text := strconv.Itoa(n)
			var value any = n
			if n == engine.Unbounded {
				text = "unbounded"
				value = text
			}
			outputFn().Print([]string{"STARTABLE"}, [][]string{{text}}, map[string]any{"startable": value})
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", -1, "Concurrency limit (negative = none)")
	cmd.Flags().IntVar(&consumed, "consumed", 0, "Members currently running")
	cmd.Flags().IntVar(&budget, "budget", 0, "Remaining run budget (unset = none)")

	return cmd
}
