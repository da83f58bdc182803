package db_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siftlab/sift/db"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.Open(filepath.Join(t.TempDir(), "sift.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMigrateCreatesSchema(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, db.Migrate(conn, nil))

	for _, table := range []string{"datasets", "dataset_fields", "documents", "methods", "subsets", "subset_documents"} {
		var name string
		err := conn.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		assert.NoError(t, err, "expected table %s", table)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, db.Migrate(conn, nil))
	require.NoError(t, db.Migrate(conn, nil))

	var applied int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, 3, applied)
}

func TestCompositeKeysScopeNodesPerDataset(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, db.Migrate(conn, nil))

	for _, datasetID := range []int64{1, 2} {
		_, err := conn.Exec(
			`INSERT INTO datasets (label, description, loaded, created_at) VALUES (?, '', 1, CURRENT_TIMESTAMP)`,
			"ds",
		)
		require.NoError(t, err)
		// Every dataset owns a subset with id 0
		_, err = conn.Exec(
			`INSERT INTO subsets (dataset_id, id, label, description, version) VALUES (?, 0, 'root', '', 0)`,
			datasetID,
		)
		require.NoError(t, err)
	}

	// The same id within one dataset must be rejected
	_, err := conn.Exec(
		`INSERT INTO subsets (dataset_id, id, label, description, version) VALUES (1, 0, 'dup', '', 0)`,
	)
	assert.Error(t, err)
}

func TestIsDatabaseClosed(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, conn.Close())

	err := conn.QueryRow(`SELECT 1`).Scan(new(int))
	assert.True(t, db.IsDatabaseClosed(err))
	assert.False(t, db.IsDatabaseClosed(nil))
}
