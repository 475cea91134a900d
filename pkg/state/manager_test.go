package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudseed-io/seedctl/pkg/state/backend"
	"github.com/cloudseed-io/seedctl/pkg/state/backend/local"
	"github.com/cloudseed-io/seedctl/pkg/state/types"
)

func newTestManager(t *testing.T) Manager {
	t.Helper()
	b, err := local.NewBackend(map[string]string{"path": t.TempDir()})
	require.NoError(t, err)
	return NewManager(b)
}

func sampleRun(id string, started time.Time) *types.RunRecord {
	return &types.RunRecord{
		ID:               id,
		Deployment:       "azuregoat",
		IdentifierSuffix: "8472910",
		Status:           types.RunStatusApplied,
		StartedAt:        started,
		FinishedAt:       started.Add(time.Minute),
		Resources: map[string]*types.ResourceRecord{
			"store": {
				Name:    "store",
				Kind:    "storage/account",
				Status:  types.ResourceStatusApplied,
				Outputs: map[string]interface{}{"host": "appdata8472910.blob.example.com"},
			},
		},
	}
}

func TestManager_SaveAndGetRun(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	record := sampleRun("run-1", time.Now().UTC().Truncate(time.Second))
	require.NoError(t, m.SaveRun(ctx, record))

	loaded, err := m.GetRun(ctx, "azuregoat", "run-1")
	require.NoError(t, err)
	assert.Equal(t, record.ID, loaded.ID)
	assert.Equal(t, record.IdentifierSuffix, loaded.IdentifierSuffix)
	assert.Equal(t, types.ResourceStatusApplied, loaded.Resources["store"].Status)
	assert.Equal(t, "appdata8472910.blob.example.com", loaded.Resources["store"].Outputs["host"])
}

func TestManager_GetMissingRun(t *testing.T) {
	m := newTestManager(t)
	_, err := m.GetRun(context.Background(), "azuregoat", "nope")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestManager_ListRunsNewestFirst(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, m.SaveRun(ctx, sampleRun("run-old", base.Add(-time.Hour))))
	require.NoError(t, m.SaveRun(ctx, sampleRun("run-new", base)))

	refs, err := m.ListRuns(ctx, "azuregoat")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "run-new", refs[0].ID)
	assert.Equal(t, "run-old", refs[1].ID)
}

func TestManager_LatestRun(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	_, err := m.LatestRun(ctx, "azuregoat")
	assert.ErrorIs(t, err, backend.ErrNotFound)

	require.NoError(t, m.SaveRun(ctx, sampleRun("run-1", base.Add(-time.Hour))))
	require.NoError(t, m.SaveRun(ctx, sampleRun("run-2", base)))

	latest, err := m.LatestRun(ctx, "azuregoat")
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.ID)
}

func TestManager_DeleteRun(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveRun(ctx, sampleRun("run-1", time.Now())))
	require.NoError(t, m.DeleteRun(ctx, "azuregoat", "run-1"))

	_, err := m.GetRun(ctx, "azuregoat", "run-1")
	assert.ErrorIs(t, err, backend.ErrNotFound)

	// Idempotent
	assert.NoError(t, m.DeleteRun(ctx, "azuregoat", "run-1"))
}

func TestManager_LockExcludesSecondHolder(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	lock, err := m.Lock(ctx, "azuregoat", "tester", "apply")
	require.NoError(t, err)
	assert.NotEmpty(t, lock.ID())
	assert.Equal(t, "tester", lock.Info().Who)

	_, err = m.Lock(ctx, "azuregoat", "other", "apply")
	require.Error(t, err)
	var lockErr *backend.LockError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, "tester", lockErr.Info.Who)

	require.NoError(t, lock.Unlock(ctx))

	lock2, err := m.Lock(ctx, "azuregoat", "other", "apply")
	require.NoError(t, err)
	require.NoError(t, lock2.Unlock(ctx))
}

func TestRunRecord_Counts(t *testing.T) {
	record := &types.RunRecord{
		Resources: map[string]*types.ResourceRecord{
			"a": {Status: types.ResourceStatusApplied},
			"b": {Status: types.ResourceStatusFailed},
			"c": {Status: types.ResourceStatusSkipped},
			"d": {Status: types.ResourceStatusApplied},
		},
	}

	applied, failed, skipped := record.Counts()
	assert.Equal(t, 2, applied)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, skipped)
	assert.False(t, record.FullyApplied())
}
