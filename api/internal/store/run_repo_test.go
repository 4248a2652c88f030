package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *RunRepo {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(db, DriverSQLite))
	return NewRunRepo(db, DriverSQLite)
}

func TestRunRepo_SaveAndFind(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.Record(ctx, "homework", "hash-1", "smart-model", map[string]any{"subject": "math"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := repo.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "homework", run.Kind)
	assert.Equal(t, "hash-1", run.InputHash)
	assert.Equal(t, "smart-model", run.ModelID)
	assert.JSONEq(t, `{"subject":"math"}`, string(run.Result))
	assert.WithinDuration(t, time.Now(), run.CreatedAt, time.Minute)

	_, err = repo.Find(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRunRepo_FindLatestByHash(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	_, err := repo.Save(ctx, Run{ID: "old", Kind: "homework", InputHash: "h", ModelID: "a", CreatedAt: now.Add(-2 * time.Hour)})
	require.NoError(t, err)
	_, err = repo.Save(ctx, Run{ID: "new", Kind: "homework", InputHash: "h", ModelID: "b", CreatedAt: now.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = repo.Save(ctx, Run{ID: "other", Kind: "math", InputHash: "h", ModelID: "c", CreatedAt: now})
	require.NoError(t, err)

	run, err := repo.FindLatestByHash(ctx, "homework", "h", 0)
	require.NoError(t, err)
	assert.Equal(t, "new", run.ID)

	_, err = repo.FindLatestByHash(ctx, "homework", "h", 30*time.Minute)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = repo.FindLatestByHash(ctx, "video", "h", 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRunRepo_PurgeOlderThan(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	for i, age := range []time.Duration{72 * time.Hour, 48 * time.Hour, time.Minute} {
		_, err := repo.Save(ctx, Run{Kind: "math", InputHash: string(rune('a' + i)), ModelID: "m", CreatedAt: now.Add(-age)})
		require.NoError(t, err)
	}

	n, err := repo.PurgeOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = repo.FindLatestByHash(ctx, "math", "c", 0)
	require.NoError(t, err)
}

func TestRebind(t *testing.T) {
	q := `select * from runs where kind = ? and input_hash = ?`
	assert.Equal(t, q, rebind(DriverSQLite, q))
	assert.Equal(t, `select * from runs where kind = $1 and input_hash = $2`, rebind(DriverPostgres, q))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	require.Error(t, err)
}

func TestJanitor_PurgesOnStart(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := repo.Save(ctx, Run{Kind: "math", InputHash: "old", ModelID: "m", CreatedAt: time.Now().Add(-48 * time.Hour)})
	require.NoError(t, err)
	_, err = repo.Save(ctx, Run{Kind: "math", InputHash: "new", ModelID: "m"})
	require.NoError(t, err)

	j := &Janitor{Runs: repo, Retention: 24 * time.Hour, Interval: time.Hour, Log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := repo.FindLatestByHash(ctx, "math", "old", 0)
		return errors.Is(err, ErrNotFound)
	}, 5*time.Second, 10*time.Millisecond)
	_, err = repo.FindLatestByHash(ctx, "math", "new", 0)
	require.NoError(t, err)

	cancel()
	<-done
}
