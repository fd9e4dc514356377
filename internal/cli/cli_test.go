package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/app"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
)

const trainYAML = `
kind: job
name: train
container:
  image: python:3.12
  command: [python, train.py]
`

type harness struct {
	store *repo.MemoryStore
	app   *app.App
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := repo.NewMemoryStore()
	a, err := app.Wire(config.Config{
		EventSink:  config.SinkNone,
		OutboxSize: 64,
		Namespace:  "conveyor",
	}, app.Deps{
		Runs:      store.Runs(),
		Edges:     store.Edges(),
		Artifacts: store.Artifacts(),
	}, nil)
	require.NoError(t, err)
	return &harness{store: store, app: a}
}

func (h *harness) appFn(context.Context) (*app.App, error) {
	return h.app, nil
}

func (h *harness) create(t *testing.T, run *domain.Run) *domain.Run {
	t.Helper()
	if run.ProjectID == uuid.Nil {
		run.ProjectID = uuid.New()
	}
	require.NoError(t, h.store.Create(context.Background(), run))
	return run
}

func (h *harness) get(t *testing.T, id uuid.UUID) *domain.Run {
	t.Helper()
	run, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return run
}

// execute собирает корневую команду, как это делает main, и запускает её.
func execute(appFn AppFunc, jsonMode bool, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	outputFn := func() *Output { return NewOutputTo(jsonMode, &stdout, &stderr) }

	root := &cobra.Command{Use: "conveyor", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(
		NewRunCmd(appFn, outputFn),
		NewPipelineCmd(appFn, outputFn),
		NewCacheCmd(outputFn),
		NewAdmissionCmd(outputFn),
	)
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRunShow(t *testing.T) {
	h := newHarness(t)
	run := h.create(t, &domain.Run{Name: "train", Kind: domain.KindJob})

	out, _, err := execute(h.appFn, false, "run", "show", run.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, run.ID.String())
	assert.Contains(t, out, string(domain.StatusCreated))
}

func TestRunShow_Errors(t *testing.T) {
	h := newHarness(t)

	_, _, err := execute(h.appFn, false, "run", "show", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid run id")

	_, _, err = execute(h.appFn, false, "run", "show", uuid.NewString())
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, _, err = execute(h.appFn, false, "run", "show")
	assert.Error(t, err)
}

func TestRunPrepare_QueuesManagedJob(t *testing.T) {
	h := newHarness(t)
	run := h.create(t, &domain.Run{
		ProjectID:  uuid.New(),
		Kind:       domain.KindJob,
		ManagedBy:  domain.ManagedByAgent,
		RawContent: trainYAML,
	})

	out, errOut, err := execute(h.appFn, true, "run", "prepare", run.ID.String())
	require.NoError(t, err)
	assert.Contains(t, errOut, "prepare: ok")

	var got domain.Run
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, domain.StatusQueued, got.Status)
	assert.Equal(t, 0, h.app.Outbox.Len())
}

func TestRunPrepare_InvalidSpecReportsFailure(t *testing.T) {
	h := newHarness(t)
	run := h.create(t, &domain.Run{
		ProjectID:  uuid.New(),
		Kind:       domain.KindJob,
		ManagedBy:  domain.ManagedByAgent,
		RawContent: "kind: job\nname: broken\n",
	})

	_, errOut, err := execute(h.appFn, false, "run", "prepare", run.ID.String())
	require.NoError(t, err)
	assert.Contains(t, errOut, "prepare: run did not advance")
	assert.Equal(t, domain.StatusFailed, h.get(t, run.ID).Status)
}

func TestRunResume_PreparesRun(t *testing.T) {
	h := newHarness(t)
	run := h.create(t, &domain.Run{Kind: domain.KindJob, ManagedBy: domain.ManagedByAgent, RawContent: trainYAML})

	_, errOut, err := execute(h.appFn, false, "run", "resume", run.ID.String())
	require.NoError(t, err)
	assert.Contains(t, errOut, "resume: ok")
	assert.Equal(t, domain.StatusQueued, h.get(t, run.ID).Status)
	assert.Equal(t, 0, h.app.Outbox.Len())
}

func TestRunApprove_StartsCompiledRun(t *testing.T) {
	h := newHarness(t)
	run := h.create(t, &domain.Run{Kind: domain.KindJob, ManagedBy: domain.ManagedByAgent, Status: domain.StatusCompiled})

	_, _, err := execute(h.appFn, false, "run", "approve", run.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, h.get(t, run.ID).Status)
}

func TestRunArtifacts(t *testing.T) {
	h := newHarness(t)
	run := h.create(t, &domain.Run{Kind: domain.KindJob, ManagedBy: domain.ManagedByAgent, Status: domain.StatusRunning})

	_, _, err := execute(h.appFn, false, "run", "artifacts", run.ID.String(),
		"--artifact", "model=/out/model", "--kind", string(domain.ArtifactModel))
	require.NoError(t, err)

	outputs, err := h.store.Artifacts().ListOutputs(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "model", outputs[0].Name)
	assert.Equal(t, domain.ArtifactModel, outputs[0].Kind)

	_, _, err = execute(h.appFn, false, "run", "artifacts", run.ID.String(), "--artifact", "model")
	assert.ErrorContains(t, err, "expected NAME=PATH")
}

func TestRunStop(t *testing.T) {
	h := newHarness(t)
	run := h.create(t, &domain.Run{Kind: domain.KindJob, ManagedBy: domain.ManagedByAgent, Status: domain.StatusRunning})

	_, errOut, err := execute(h.appFn, false, "run", "stop", run.ID.String())
	require.NoError(t, err)
	assert.Contains(t, errOut, "stop: ok")
	assert.Equal(t, domain.StatusStopped, h.get(t, run.ID).Status)
}

func TestRunArchiveRestore(t *testing.T) {
	h := newHarness(t)
	parent := h.create(t, &domain.Run{Kind: domain.KindDAG, Status: domain.StatusSucceeded})
	child := h.create(t, &domain.Run{Kind: domain.KindJob, PipelineID: &parent.ID, Status: domain.StatusSucceeded})

	_, errOut, err := execute(h.appFn, false, "run", "archive", parent.ID.String())
	require.NoError(t, err)
	assert.Contains(t, errOut, "archive: 2 run(s) affected")
	assert.Equal(t, domain.LiveStateArchived, h.get(t, parent.ID).LiveState)
	assert.Equal(t, domain.LiveStateArchived, h.get(t, child.ID).LiveState)

	_, _, err = execute(h.appFn, false, "run", "restore", parent.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.LiveStateLive, h.get(t, parent.ID).LiveState)
	assert.Equal(t, domain.LiveStateLive, h.get(t, child.ID).LiveState)
}

func TestRunDeleteAndConfirm(t *testing.T) {
	h := newHarness(t)
	run := h.create(t, &domain.Run{Kind: domain.KindJob, Status: domain.StatusSucceeded})

	// Без пометки на удаление подтверждение отклоняется.
	_, _, err := execute(h.appFn, false, "run", "confirm-delete", run.ID.String())
	require.Error(t, err)

	_, _, err = execute(h.appFn, false, "run", "delete", run.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.LiveStateDeletionProgressing, h.get(t, run.ID).LiveState)

	out, _, err := execute(h.appFn, true, "run", "confirm-delete", run.ID.String())
	require.NoError(t, err)

	var deleted []uuid.UUID
	require.NoError(t, json.Unmarshal([]byte(out), &deleted))
	assert.Equal(t, []uuid.UUID{run.ID}, deleted)

	_, err = h.store.Get(context.Background(), run.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func seedPipeline(t *testing.T, h *harness) (pipeline, a, b *domain.Run) {
	t.Helper()
	base := time.Now().UTC().Add(-time.Hour)
	pipeline = h.create(t, &domain.Run{ProjectID: uuid.New(), Kind: domain.KindDAG, ManagedBy: domain.ManagedByAgent, Status: domain.StatusQueued, CreatedAt: base})
	member := func(name string, at time.Time) *domain.Run {
		return h.create(t, &domain.Run{
			Name:       name,
			ProjectID:  pipeline.ProjectID,
			Kind:       domain.KindJob,
			ManagedBy:  domain.ManagedByAgent,
			RawContent: trainYAML,
			PipelineID: &pipeline.ID,
			CreatedAt:  at,
		})
	}
	a = member("a", base.Add(time.Second))
	b = member("b", base.Add(2*time.Second))
	require.NoError(t, h.store.Edges().Create(context.Background(), &domain.RunEdge{
		UpstreamID: a.ID, DownstreamID: b.ID, Kind: domain.EdgeAction,
	}))
	return pipeline, a, b
}

func TestPipelineGraph(t *testing.T) {
	h := newHarness(t)
	pipeline, a, b := seedPipeline(t, h)

	out, _, err := execute(h.appFn, true, "pipeline", "graph", pipeline.ID.String())
	require.NoError(t, err)

	var nodes []graphNode
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	require.Len(t, nodes, 2)
	assert.Equal(t, "a", nodes[0].Name)
	assert.Equal(t, []uuid.UUID{b.ID}, nodes[0].Downstream)
	assert.Equal(t, a.ID, nodes[0].ID)
	assert.Empty(t, nodes[1].Downstream)

	table, _, err := execute(h.appFn, false, "pipeline", "graph", pipeline.ID.String())
	require.NoError(t, err)
	assert.Contains(t, table, "READY")
	assert.Contains(t, table, "true")
}

func TestPipelineReconcileAndDone(t *testing.T) {
	h := newHarness(t)
	pipeline, a, b := seedPipeline(t, h)

	out, _, err := execute(h.appFn, true, "pipeline", "done", pipeline.ID.String())
	require.NoError(t, err)
	assert.JSONEq(t, `{"pipeline_id":"`+pipeline.ID.String()+`","done":false}`, out)

	_, errOut, err := execute(h.appFn, false, "pipeline", "reconcile", pipeline.ID.String())
	require.NoError(t, err)
	assert.Contains(t, errOut, "reconcile: ok")
	assert.Equal(t, domain.StatusRunning, h.get(t, pipeline.ID).Status)
	assert.Equal(t, domain.StatusQueued, h.get(t, a.ID).Status)
	assert.Equal(t, domain.StatusCreated, h.get(t, b.ID).Status)
}

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func fingerprint(t *testing.T, args ...string) map[string]any {
	t.Helper()
	out, _, err := execute(nil, true, append([]string{"cache", "fingerprint"}, args...)...)
	require.NoError(t, err)
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	return res
}

func TestCacheFingerprint(t *testing.T) {
	spec := writeSpec(t, trainYAML)
	ns := uuid.NewString()

	first := fingerprint(t, "--spec", spec, "--namespace", ns)
	assert.Equal(t, true, first["enabled"])
	assert.NotEmpty(t, first["fingerprint"])

	again := fingerprint(t, "--spec", spec, "--namespace", ns)
	assert.Equal(t, first["fingerprint"], again["fingerprint"])

	other := fingerprint(t, "--spec", spec, "--namespace", uuid.NewString())
	assert.NotEqual(t, first["fingerprint"], other["fingerprint"])

	salted := fingerprint(t, "--spec", spec, "--namespace", ns, "--salt", "v2")
	assert.NotEqual(t, first["fingerprint"], salted["fingerprint"])
}

func TestCacheFingerprint_Disabled(t *testing.T) {
	spec := writeSpec(t, trainYAML+"cache:\n  disable: true\n")

	res := fingerprint(t, "--spec", spec, "--namespace", uuid.NewString())
	assert.Equal(t, false, res["enabled"])
	assert.Equal(t, "", res["fingerprint"])
}

func TestCacheFingerprint_Errors(t *testing.T) {
	spec := writeSpec(t, trainYAML)

	_, _, err := execute(nil, false, "cache", "fingerprint", "--spec", spec, "--namespace", "nope")
	assert.ErrorContains(t, err, "invalid namespace")

	_, _, err = execute(nil, false, "cache", "fingerprint", "--namespace", uuid.NewString())
	assert.Error(t, err)
}

func TestAdmissionStartable(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unbounded", nil, `{"startable":"unbounded"}`},
		{"concurrency", []string{"--concurrency", "3", "--consumed", "1"}, `{"startable":2}`},
		{"budget", []string{"--budget", "4", "--consumed", "1"}, `{"startable":3}`},
		{"both", []string{"--concurrency", "5", "--budget", "2", "--consumed", "1"}, `{"startable":1}`},
		{"exhausted", []string{"--budget", "0"}, `{"startable":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(nil, true, append([]string{"admission", "startable"}, tt.args...)...)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, out)
		})
	}
}

func TestAdmissionStartable_Table(t *testing.T) {
	out, _, err := execute(nil, false, "admission", "startable")
	require.NoError(t, err)
	assert.Contains(t, out, "STARTABLE")
	assert.Contains(t, out, "unbounded")
}
