package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitSQLite_CreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "learnpath.db")

	conn, err := InitSQLite(path)
	require.NoError(t, err)
	defer conn.Close()

	for _, table := range []string{"plans", "steps", "resources", "completions", "owner_tiers"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	var fk int
	require.NoError(t, conn.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestInitSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learnpath.db")

	first, err := InitSQLite(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := InitSQLite(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestInitSQLite_ShareTokenUnique(t *testing.T) {
	conn, err := InitSQLite(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	insert := `INSERT INTO plans (id, owner_id, title, visibility, share_token, created_at) VALUES (?, 'u1', 't', ?, ?, 0)`
	_, err = conn.Exec(insert, "p1", "public", "tok")
	require.NoError(t, err)
	_, err = conn.Exec(insert, "p2", "public", "tok")
	assert.Error(t, err)

	// several private plans may have no token at all
	_, err = conn.Exec(insert, "p3", "private", nil)
	require.NoError(t, err)
	_, err = conn.Exec(insert, "p4", "private", nil)
	require.NoError(t, err)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, _, err := Open("mysql", "dsn")
	assert.ErrorContains(t, err, "unknown database driver")
}

func TestOpen_SQLite(t *testing.T) {
	conn, dialect, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, SQLite, dialect)
}
