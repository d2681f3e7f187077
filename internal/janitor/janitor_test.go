package janitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"htmlurl/internal/config"
	"htmlurl/internal/logging"
	"htmlurl/internal/metrics"
	"htmlurl/internal/model"
	"htmlurl/internal/storage"
	storeMocks "htmlurl/internal/storage/mocks"
)

func TestJanitor_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocal(config.StorageConfig{Dir: t.TempDir(), MaxContentLength: 1024})
	require.NoError(t, err)

	a, err := store.Create(ctx, model.KindHTML, []byte("<p>ttl</p>"))
	require.NoError(t, err)
	created := a.CreatedAt

	maxAge := time.Hour
	now := created.Add(maxAge - time.Second)
	j := New(store, maxAge, time.Minute, logging.Discard(), WithClock(func() time.Time { return now }))

	res := j.Sweep(ctx)
	assert.Equal(t, SweepResult{Scanned: 1}, res)
	_, _, err = store.Read(ctx, a.ID, model.KindHTML)
	assert.NoError(t, err, "readable just before max age")

	now = created.Add(maxAge + time.Second)
	res = j.Sweep(ctx)
	assert.Equal(t, SweepResult{Scanned: 1, Deleted: 1}, res)
	_, _, err = store.Read(ctx, a.ID, model.KindHTML)
	assert.ErrorIs(t, err, storage.ErrNotFound, "absent just after max age")
}

func TestJanitor_SweepsOnlyExpired(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := storage.NewLocal(config.StorageConfig{Dir: dir, MaxContentLength: 1024})
	require.NoError(t, err)

	old, err := store.Create(ctx, model.KindHTML, []byte("old"))
	require.NoError(t, err)
	_, err = store.CreateWithID(ctx, old.ID, model.KindPDF, []byte("%PDF"))
	require.NoError(t, err)
	fresh, err := store.Create(ctx, model.KindHTML, []byte("fresh"))
	require.NoError(t, err)

	past := time.Now().Add(-48 * time.Hour)
	for _, name := range []string{old.ID + ".html", old.ID + ".pdf"} {
		require.NoError(t, os.Chtimes(filepath.Join(dir, name), past, past))
	}

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	j := New(store, 24*time.Hour, time.Minute, logging.Discard(), WithMetrics(m))
	res := j.Sweep(ctx)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, 0, res.Failed)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, fresh.ID, list[0].ID)
}

func TestJanitor_ContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-2 * time.Hour)

	mStore := new(storeMocks.MockContentStore)
	mStore.On("List", ctx).Return([]model.Artifact{
		{ID: "aaaaaaaaaaaa", Kind: model.KindHTML, CreatedAt: old},
		{ID: "bbbbbbbbbbbb", Kind: model.KindHTML, CreatedAt: old},
		{ID: "cccccccccccc", Kind: model.KindPDF, CreatedAt: now},
	}, nil)
	mStore.On("Delete", ctx, "aaaaaaaaaaaa", model.KindHTML).
		Return(errors.Join(storage.ErrStorageUnavailable, errors.New("permission denied")))
	mStore.On("Delete", ctx, "bbbbbbbbbbbb", model.KindHTML).Return(nil)

	j := New(mStore, time.Hour, time.Minute, logging.Discard(), WithClock(func() time.Time { return now }))
	res := j.Sweep(ctx)

	assert.Equal(t, SweepResult{Scanned: 3, Deleted: 1, Failed: 1}, res)
	mStore.AssertExpectations(t)
	mStore.AssertNotCalled(t, "Delete", ctx, "cccccccccccc", mock.Anything)
}

func TestJanitor_ListFailure(t *testing.T) {
	ctx := context.Background()
	mStore := new(storeMocks.MockContentStore)
	mStore.On("List", ctx).Return(nil, storage.ErrStorageUnavailable)

	j := New(mStore, time.Hour, time.Minute, logging.Discard())
	assert.Equal(t, SweepResult{}, j.Sweep(ctx))
	mStore.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestJanitor_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	swept := make(chan struct{}, 8)

	mStore := new(storeMocks.MockContentStore)
	mStore.On("List", mock.Anything).Return([]model.Artifact{}, nil).Run(func(mock.Arguments) {
		select {
		case swept <- struct{}{}:
		default:
		}
	})

	j := New(mStore, time.Hour, 10*time.Millisecond, logging.Discard())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	// First sweep is immediate, the next follows the interval.
	for i := 0; i < 2; i++ {
		select {
		case <-swept:
		case <-time.After(time.Second):
			t.Fatal("janitor did not sweep")
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
