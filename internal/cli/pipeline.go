package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/app"
)

// NewPipelineCmd создаёт группу команд для pipeline'ов.
func NewPipelineCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Inspect and drive pipelines",
	}

	cmd.AddCommand(
		newPipelineGraphCmd(appFn, outputFn),
		newPipelineDoneCmd(appFn, outputFn),
		newRunOpCmd(appFn, outputFn, "reconcile", "Advance a pipeline: block, start ready members, finish",
			func(ctx context.Context, a *app.App, id uuid.UUID) bool {
				return a.Manager.ReconcilePipeline(ctx, id)
			}),
	)

	return cmd
}

type graphNode struct {
	ID         uuid.UUID   `json:"id"`
	Name       string      `json:"name"`
	Status     string      `json:"status"`
	Downstream []uuid.UUID `json:"downstream"`
}

func newPipelineGraphCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "graph PIPELINE_ID",
		Short: "Show pipeline members in topological order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := appFn(cmd.Context())
			if err != nil {
				return err
			}

			g, err := a.Manager.Resolver().BuildGraph(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("build graph: %w", err)
			}

			ready := make(map[uuid.UUID]bool)
			for _, n := range g.Ready() {
				ready[n.ID] = true
			}

			nodes := make([]graphNode, 0, len(g.Order))
			rows := make([][]string, 0, len(g.Order))
			for _, n := range g.Order {
				downs := make([]uuid.UUID, 0, len(n.Downstream))
				names := make([]string, 0, len(n.Downstream))
				for _, d := range n.Downstream {
					downs = append(downs, d.ID)
					names = append(names, d.Run.Name)
				}
				nodes = append(nodes, graphNode{
					ID:         n.ID,
					Name:       n.Run.Name,
					Status:     string(n.Status()),
					Downstream: downs,
				})
				rows = append(rows, []string{
					n.ID.String(),
					n.Run.Name,
					string(n.Status()),
					strconv.FormatBool(ready[n.ID]),
					strings.Join(names, ","),
				})
			}

			outputFn().Print([]string{"ID", "NAME", "STATUS", "READY", "DOWNSTREAM"}, rows, nodes)
			return nil
		},
	}
}

func newPipelineDoneCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "done PIPELINE_ID",
		Short: "Report whether every pipeline member is finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := appFn(cmd.Context())
			if err != nil {
				return err
			}

			done, err := a.Manager.Resolver().IsPipelineDone(cmd.Context(), id)
			if err != nil {
				return err
			}

			outputFn().Print([]string{"PIPELINE", "DONE"},
				[][]string{{id.String(), strconv.FormatBool(done)}},
				map[string]any{"pipeline_id": id, "done": done})
			return nil
		},
	}
}
