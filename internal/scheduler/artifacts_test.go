package scheduler

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
)

func reported() []domain.ArtifactInput {
	return []domain.ArtifactInput{
		{Name: "train.csv", Kind: domain.ArtifactDataset, Path: "s3://data/train.csv", IsInput: true},
		{Name: "model", Kind: domain.ArtifactModel, Path: "outputs/model.pt"},
		{Name: "model", Kind: domain.ArtifactModel, Path: "outputs/model.pt"},
		{Name: "loss", Kind: domain.ArtifactMetric, Summary: map[string]any{"last": 0.12}},
	}
}

func TestSetArtifacts_Idempotent(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	run := f.create(t, &domain.Run{Status: domain.StatusRunning})

	require.True(t, f.mgr.SetArtifacts(ctx, run.ID, reported()))
	require.True(t, f.mgr.SetArtifacts(ctx, run.ID, reported()))

	lineage, err := f.store.Artifacts().ListLineage(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, lineage, 3)

	outputs, err := f.store.Artifacts().ListOutputs(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	for _, a := range outputs {
		assert.Equal(t, run.ID, a.State)
	}

	inputState := uuid.NewSHA1(projectID, []byte("train.csv"+"s3://data/train.csv"))
	found, err := f.store.Artifacts().FindByKeys(ctx, []domain.ArtifactKey{{Name: "train.csv", State: inputState}})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestSetArtifacts_UpdatesChangedSummary(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	run := f.create(t, &domain.Run{Status: domain.StatusRunning})

	require.True(t, f.mgr.SetArtifacts(ctx, run.ID, []domain.ArtifactInput{
		{Name: "loss", Kind: domain.ArtifactMetric, Summary: map[string]any{"last": 0.5}},
	}))
	require.True(t, f.mgr.SetArtifacts(ctx, run.ID, []domain.ArtifactInput{
		{Name: "loss", Kind: domain.ArtifactMetric, Summary: map[string]any{"last": 0.1}},
	}))

	found, err := f.store.Artifacts().FindByKeys(ctx, []domain.ArtifactKey{{Name: "loss", State: run.ID}})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, 0.1, found[0].Summary["last"])
}

func TestSetArtifacts_ExplicitStateShared(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	producer := f.create(t, &domain.Run{Status: domain.StatusRunning})
	consumer := f.create(t, &domain.Run{Status: domain.StatusRunning})

	state := producer.ID
	require.True(t, f.mgr.SetArtifacts(ctx, producer.ID, []domain.ArtifactInput{{Name: "model", Kind: domain.ArtifactModel}}))
	require.True(t, f.mgr.SetArtifacts(ctx, consumer.ID, []domain.ArtifactInput{{Name: "model", Kind: domain.ArtifactModel, State: &state, IsInput: true}}))

	produced, err := f.store.Artifacts().ListOutputs(ctx, producer.ID)
	require.NoError(t, err)
	require.Len(t, produced, 1)

	lineage, err := f.store.Artifacts().ListLineage(ctx, consumer.ID)
	require.NoError(t, err)
	require.Len(t, lineage, 1)
	assert.Equal(t, produced[0].ID, lineage[0].ArtifactID)
	assert.True(t, lineage[0].IsInput)
}

// conflictOnce возвращает ErrConflict на первую вставку, как параллельный writer.
type conflictOnce struct {
	repo.ArtifactStore
	failed bool
}

func (c *conflictOnce) Create(ctx context.Context, a *domain.Artifact) error {
	if !c.failed {
		c.failed = true
		return fmt.Errorf("insert artifact: %w", repo.ErrConflict)
	}
	return c.ArtifactStore.Create(ctx, a)
}

func TestSetArtifacts_RetriesConflict(t *testing.T) {
	f := newFixture(t, true)
	store := &conflictOnce{ArtifactStore: f.store.Artifacts()}
	f.mgr.artifacts = store
	run := f.create(t, &domain.Run{Status: domain.StatusRunning})

	require.True(t, f.mgr.SetArtifacts(context.Background(), run.ID, []domain.ArtifactInput{{Name: "model", Kind: domain.ArtifactModel}}))
	assert.True(t, store.failed)

	outputs, err := f.store.Artifacts().ListOutputs(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, outputs, 1)
}

// alwaysConflict — конфликт не разрешается за отведённые попытки.
type alwaysConflict struct {
	repo.ArtifactStore
	calls int
}

func (c *alwaysConflict) Create(context.Context, *domain.Artifact) error {
	c.calls++
	return repo.ErrConflict
}

func TestSetArtifacts_GivesUpAfterAttempts(t *testing.T) {
	f := newFixture(t, true)
	store := &alwaysConflict{ArtifactStore: f.store.Artifacts()}
	f.mgr.artifacts = store
	run := f.create(t, &domain.Run{Status: domain.StatusRunning})

	assert.False(t, f.mgr.SetArtifacts(context.Background(), run.ID, []domain.ArtifactInput{{Name: "model"}}))
	assert.Equal(t, defaultArtifactAttempts, store.calls)
}
