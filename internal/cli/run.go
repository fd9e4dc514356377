package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/app"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/events"
	"github.com/shaiso/Conveyor/internal/livestate"
)

// AppFunc лениво собирает граф компонентов. Вызывается после разбора флагов.
type AppFunc func(ctx context.Context) (*app.App, error)

var runHeaders = []string{"ID", "NAME", "KIND", "STATUS", "LIVE_STATE", "PENDING", "CREATED"}

// NewRunCmd создаёт группу команд для управления run'ами.
func NewRunCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	cmd.AddCommand(
		newRunShowCmd(appFn, outputFn),
		newRunOpCmd(appFn, outputFn, "prepare", "Compile a run and start it",
			func(ctx context.Context, a *app.App, id uuid.UUID) bool {
				return a.Manager.Prepare(ctx, id, true)
			}),
		newRunOpCmd(appFn, outputFn, "start", "Start a compiled run",
			func(ctx context.Context, a *app.App, id uuid.UUID) bool {
				return a.Manager.Start(ctx, id)
			}),
		newRunStopCmd(appFn, outputFn),
		newRunEventCmd(appFn, outputFn, "approve", "Approve a run waiting after compilation", events.RunApproved, nil),
		newRunEventCmd(appFn, outputFn, "resume", "Resume a run and prepare it again", events.RunResumed, nil),
		newRunArtifactsCmd(appFn, outputFn),
		newRunLiveStateCmd(appFn, outputFn, "archive", "Archive a run and its descendants",
			events.RunArchived, (*livestate.Manager).Archive),
		newRunLiveStateCmd(appFn, outputFn, "restore", "Restore an archived run and its descendants",
			events.RunRestored, (*livestate.Manager).Restore),
		newRunLiveStateCmd(appFn, outputFn, "delete", "Mark a run and its descendants for deletion",
			events.RunDeleted, (*livestate.Manager).Delete),
		newRunConfirmDeleteCmd(appFn, outputFn),
	)

	return cmd
}

func newRunShowCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a run",
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
			return printRun(cmd.Context(), a, outputFn(), id)
		},
	}
}

// newRunOpCmd — команда, выполняющая одну операцию Manager'а.
func newRunOpCmd(appFn AppFunc, outputFn func() *Output, use, short string,
	op func(ctx context.Context, a *app.App, id uuid.UUID) bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " RUN_ID",
		Short: short,
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
			return finish(cmd.Context(), a, outputFn(), id, use, op(cmd.Context(), a, id))
		},
	}
}

func newRunStopCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	var clean, keepStatus bool

	cmd := &cobra.Command{
		Use:   "stop RUN_ID",
		Short: "Stop a run",
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
			ok := a.Manager.Stop(cmd.Context(), id, !keepStatus, clean)
			return finish(cmd.Context(), a, outputFn(), id, "stop", ok)
		},
	}

	cmd.Flags().BoolVar(&clean, "clean", false, "Delete cluster resources before stopping")
	cmd.Flags().BoolVar(&keepStatus, "keep-status", false, "Do not move the run to STOPPED")

	return cmd
}

// newRunEventCmd записывает событие run'а; реакцию на него выполняет executor при Drain.
func newRunEventCmd(appFn AppFunc, outputFn func() *Output, use, short string, eventType events.EventType,
	attrsFn func() (func(*events.Attributes), error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " RUN_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var mutate func(*events.Attributes)
			if attrsFn != nil {
				if mutate, err = attrsFn(); err != nil {
					return err
				}
			}

			a, err := appFn(ctx)
			if err != nil {
				return err
			}
			run, err := a.Runs.Get(ctx, id)
			if err != nil {
				return err
			}

			attrs := events.AttributesFromRun(run)
			if mutate != nil {
				mutate(&attrs)
			}
			if err := a.Auditor.Record(ctx, eventType, attrs, events.WithRun(run)); err != nil {
				return err
			}
			return finish(ctx, a, outputFn(), id, use, true)
		},
	}
}

func newRunArtifactsCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	var (
		specs []string
		kind  string
		input bool
	)

	cmd := newRunEventCmd(appFn, outputFn, "artifacts", "Report artifacts produced or consumed by a run",
		events.RunNewArtifacts, func() (func(*events.Attributes), error) {
			inputs, err := parseArtifacts(specs, domain.ArtifactKind(kind), input)
			if err != nil {
				return nil, err
			}
			return func(attrs *events.Attributes) { attrs.Artifacts = inputs }, nil
		})

	cmd.Flags().StringArrayVarP(&specs, "artifact", "a", nil, "Artifact as NAME=PATH (repeatable)")
	cmd.Flags().StringVar(&kind, "kind", string(domain.ArtifactFile), "Artifact kind")
	cmd.Flags().BoolVar(&input, "input", false, "Artifacts are inputs of the run")
	_ = cmd.MarkFlagRequired("artifact")

	return cmd
}

// parseArtifacts разбирает значения NAME=PATH.
func parseArtifacts(specs []string, kind domain.ArtifactKind, input bool) ([]domain.ArtifactInput, error) {
	inputs := make([]domain.ArtifactInput, 0, len(specs))
	for _, spec := range specs {
		name, path, ok := strings.Cut(spec, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("invalid artifact %q: expected NAME=PATH", spec)
		}
		inputs = append(inputs, domain.ArtifactInput{Name: name, Kind: kind, Path: path, IsInput: input})
	}
	return inputs, nil
}

// newRunLiveStateCmd — каскадная смена live state с записью события.
// Управляемые run'ы, переведённые в STOPPING, останавливаются сразу.
func newRunLiveStateCmd(appFn AppFunc, outputFn func() *Output, use, short string, eventType events.EventType,
	cascade func(m *livestate.Manager, ctx context.Context, id uuid.UUID) (*livestate.Result, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " RUN_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := appFn(ctx)
			if err != nil {
				return err
			}

			res, err := cascade(a.LiveState, ctx, id)
			if err != nil {
				return err
			}

			run, err := a.Runs.Get(ctx, id)
			if err != nil {
				return err
			}
			if err := a.Auditor.Record(ctx, eventType, events.AttributesFromRun(run), events.WithRun(run)); err != nil {
				return err
			}
			for _, r := range res.Stopping {
				if r.IsManaged() {
					a.Manager.Stop(ctx, r.ID, true, false)
				}
			}

			out := outputFn()
			out.Success(fmt.Sprintf("%s: %d run(s) affected", use, len(res.Affected)))
			return finish(ctx, a, out, id, use, true)
		},
	}
}

func newRunConfirmDeleteCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm-delete RUN_ID",
		Short: "Purge a run marked for deletion",
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

			res, err := a.LiveState.ConfirmDeletion(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := outputFn()
			rows := make([][]string, len(res.Affected))
			for i, rid := range res.Affected {
				rows[i] = []string{rid.String()}
			}
			out.Success(fmt.Sprintf("Deleted %d run(s)", len(res.Affected)))
			out.Print([]string{"DELETED"}, rows, res.Affected)
			return nil
		},
	}
}

// finish обрабатывает события операции и печатает итоговое состояние run.
func finish(ctx context.Context, a *app.App, out *Output, id uuid.UUID, op string, ok bool) error {
	a.Drain(ctx)
	if ok {
		out.Success(op + ": ok")
	} else {
		out.Error(op + ": run did not advance")
	}
	return printRun(ctx, a, out, id)
}

func printRun(ctx context.Context, a *app.App, out *Output, id uuid.UUID) error {
	run, err := a.Runs.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("run %s: %w", id, err)
	}
	out.Print(runHeaders, [][]string{runRow(run)}, run)
	return nil
}

func runRow(r *domain.Run) []string {
	pending := string(r.Pending)
	if pending == "" {
		pending = "-"
	}
	return []string{
		r.ID.String(),
		r.Name,
		string(r.Kind),
		string(r.Status),
		string(r.LiveState),
		pending,
		r.CreatedAt.Format(time.RFC3339),
	}
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid run id %q: %w", s, err)
	}
	return id, nil
}
