package local

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudseed-io/seedctl/pkg/state/backend"
)

func newTestBackend(t *testing.T) backend.Backend {
	t.Helper()
	b, err := NewBackend(map[string]string{"path": t.TempDir()})
	require.NoError(t, err)
	return b
}

func TestReadWrite(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	err := b.Write(ctx, "deployments/demo/runs/run-1.run.json", strings.NewReader(`{"id":"run-1"}`))
	require.NoError(t, err)

	reader, err := b.Read(ctx, "deployments/demo/runs/run-1.run.json")
	require.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"run-1"}`, string(content))
}

func TestReadMissing(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Read(context.Background(), "deployments/demo/runs/nope.run.json")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestWriteOverwrites(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "a.json", strings.NewReader("v1")))
	require.NoError(t, b.Write(ctx, "a.json", strings.NewReader("v2")))

	reader, err := b.Read(ctx, "a.json")
	require.NoError(t, err)
	defer reader.Close()
	content, _ := io.ReadAll(reader)
	assert.Equal(t, "v2", string(content))
}

func TestDeleteIdempotent(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "a.json", strings.NewReader("v")))
	require.NoError(t, b.Delete(ctx, "a.json"))
	require.NoError(t, b.Delete(ctx, "a.json"))

	exists, err := b.Exists(ctx, "a.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestList(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "deployments/demo/runs/run-1.run.json", strings.NewReader("{}")))
	require.NoError(t, b.Write(ctx, "deployments/demo/runs/run-2.run.json", strings.NewReader("{}")))
	require.NoError(t, b.Write(ctx, "deployments/other/runs/run-3.run.json", strings.NewReader("{}")))

	paths, err := b.List(ctx, "deployments/demo")
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestLockBlocksAndReleases(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	lock, err := b.Lock(ctx, "deployments/demo", backend.LockInfo{Who: "tester", Operation: "apply"})
	require.NoError(t, err)

	_, err = b.Lock(ctx, "deployments/demo", backend.LockInfo{Who: "other", Operation: "apply"})
	require.ErrorIs(t, err, backend.ErrLocked)

	require.NoError(t, lock.Unlock(ctx))

	lock2, err := b.Lock(ctx, "deployments/demo", backend.LockInfo{Who: "other", Operation: "apply"})
	require.NoError(t, err)
	require.NoError(t, lock2.Unlock(ctx))
}
