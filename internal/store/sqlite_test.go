package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_OpenFailsOnMissingDirectory(t *testing.T) {
	_, err := NewSQLite(filepath.Join(t.TempDir(), "missing", "test.db"))
	require.Error(t, err)
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)

	// Migrate was already called in newTestSQLiteStore; calling again should not error.
	err := st.Migrate(context.Background())
	require.NoError(t, err)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	_, err = st.SaveCase(ctx, sampleRecord("case-reopen"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st2, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st2.Close() }) //nolint:errcheck

	got, err := st2.GetCase(ctx, "case-reopen")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "case-reopen", got.CaseID)
	assert.Len(t, got.Timeline, 2)
	assert.Len(t, got.Evidence, 2)
}

func TestSQLite_SaveCase_ChildrenShareTransaction(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// A record whose second event collides with its first must leave nothing
	// behind, including the parent row.
	rec := sampleRecord("case-tx")
	rec.Timeline[1].EventID = rec.Timeline[0].EventID

	_, err := st.SaveCase(ctx, rec)
	require.Error(t, err)

	got, err := st.GetCase(ctx, "case-tx")
	require.NoError(t, err)
	assert.Nil(t, got, "failed save must not leave a partial case")
}
