package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/phenology/internal/phenology"
	"github.com/chrissnell/phenology/pkg/config"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "phenology.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteObservations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	obs := []phenology.Observation{
		{Date: date(2024, 3, 2), Index: 0.21},
		{Date: time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC), Index: 0.34},
		{Date: date(2024, 3, 9), Index: 0.58},
	}
	require.NoError(t, store.SaveObservations(ctx, "north", obs))
	require.NoError(t, store.SaveObservations(ctx, "south", obs[:1]))

	got, err := store.LoadObservations(ctx, "north")
	require.NoError(t, err)
	assert.Equal(t, obs, got)

	// Saving again replaces rather than appends
	require.NoError(t, store.SaveObservations(ctx, "north", obs[1:]))
	got, err = store.LoadObservations(ctx, "north")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.LoadObservations(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteAnalysisRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a := sampleAnalysis(t)

	id, err := store.SaveAnalysis(ctx, "north", a)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	run, err := store.LoadRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, "north", run.Field)
	assert.Equal(t, phenology.AlgorithmGuided, run.Algorithm)
	assert.Equal(t, a.Parameters, run.Parameters)
	assert.True(t, run.SowingDate.Equal(a.Season.Start))
	assert.True(t, run.HarvestDate.Equal(a.Season.End))
	assert.True(t, run.PeakDate.Equal(a.Schedule.PeakDate))
	assert.Equal(t, 50, run.Trials)
	assert.Equal(t, 48, run.Succeeded)
	assert.True(t, run.CreatedAt.Equal(a.CreatedAt))

	if diff := cmp.Diff(a.Series, run.Series, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("series mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteAnalysisWithoutCover(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a := sampleAnalysis(t)
	a.Parameters = nil
	for i := range a.Series {
		a.Series[i].Cover = nil
	}

	id, err := store.SaveAnalysis(ctx, "north", a)
	require.NoError(t, err)

	run, err := store.LoadRun(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, run.Parameters)
	for _, p := range run.Series {
		assert.Nil(t, p.Cover)
	}
}

func TestSQLiteListRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	older := sampleAnalysis(t)
	newer := sampleAnalysis(t)
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	newer.Algorithm = phenology.AlgorithmLinear

	olderID, err := store.SaveAnalysis(ctx, "north", older)
	require.NoError(t, err)
	newerID, err := store.SaveAnalysis(ctx, "north", newer)
	require.NoError(t, err)
	_, err = store.SaveAnalysis(ctx, "south", older)
	require.NoError(t, err)

	runs, err := store.ListRuns(ctx, "north")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newerID, runs[0].ID)
	assert.Equal(t, olderID, runs[1].ID)
	assert.Equal(t, phenology.AlgorithmLinear, runs[0].Algorithm)
	assert.Empty(t, runs[0].Series)
}

func TestSQLiteLoadRunNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LoadRun(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, ErrRunNotFound), "got %v", err)
}

func TestOpen(t *testing.T) {
	_, err := Open(config.StorageData{}, nil)
	assert.ErrorIs(t, err, ErrNoBackend)

	store, err := Open(config.StorageData{
		SQLite: &config.SQLiteData{Path: filepath.Join(t.TempDir(), "open.db")},
	}, nil)
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &SQLiteStore{}, store)
}
