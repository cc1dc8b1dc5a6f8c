package storage_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataresource/internal/domain"
	"dataresource/internal/storage"
)

func newStore(t *testing.T) *storage.CatalogStore {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "nested", "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return storage.NewCatalogStore(db)
}

func TestEntryCRUD(t *testing.T) {
	s := newStore(t)

	e := &domain.CatalogEntry{Name: "people", Path: "people.csv", Enabled: true}
	require.NoError(t, s.CreateEntry(e))
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, domain.TriggerManual, e.TriggerType)

	got, err := s.GetEntry(e.ID)
	require.NoError(t, err)
	assert.Equal(t, "people", got.Name)
	assert.Equal(t, "{}", got.Descriptor)
	assert.True(t, got.LastRunAt.IsZero())

	byName, err := s.GetEntryByName("people")
	require.NoError(t, err)
	assert.Equal(t, e.ID, byName.ID)

	got.Descriptor = `{"name":"people"}`
	got.TriggerType = domain.TriggerSchedule
	got.TriggerConfig = "@every 1h"
	require.NoError(t, s.UpdateEntry(got))
	require.NoError(t, s.UpdateEntryStatus(e.ID, domain.StatusSuccess, ""))

	got, err = s.GetEntry(e.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"people"}`, got.Descriptor)
	assert.Equal(t, domain.StatusSuccess, got.LastStatus)
	assert.False(t, got.LastRunAt.IsZero())

	triggered, err := s.ListTriggeredEntries()
	require.NoError(t, err)
	require.Len(t, triggered, 1)

	require.Error(t, s.CreateEntry(&domain.CatalogEntry{Name: "people"}))

	require.NoError(t, s.DeleteEntry(e.ID))
	_, err = s.GetEntry(e.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteEntry(e.ID), storage.ErrNotFound)
}

func TestListEntriesSortedByName(t *testing.T) {
	s := newStore(t)
	for _, n := range []string{"b", "c", "a"} {
		require.NoError(t, s.CreateEntry(&domain.CatalogEntry{Name: n}))
	}
	entries, err := s.ListEntries()
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestRuns(t *testing.T) {
	s := newStore(t)
	e := &domain.CatalogEntry{Name: "people"}
	require.NoError(t, s.CreateEntry(e))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateRun(&domain.InferenceRun{
			EntryID:    e.ID,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Second),
			Status:     domain.StatusSuccess,
			Rows:       10 * (i + 1),
			Bytes:      100,
		}))
	}

	runs, err := s.ListRuns(e.ID, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 30, runs[0].Rows)
	assert.Equal(t, 20, runs[1].Rows)
	assert.True(t, runs[0].StartedAt.Equal(base.Add(2*time.Hour)))
}
