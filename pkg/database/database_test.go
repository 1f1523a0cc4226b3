package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptomite-go/cryptomite/pkg/config"
)

func newSQLite(t *testing.T) *Client {
	t.Helper()
	c, err := New(config.DatabaseConfig{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSQLiteInTx(t *testing.T) {
	c := newSQLite(t)
	ctx := context.Background()
	_, err := c.DB.ExecContext(ctx, `CREATE TABLE kv (k TEXT PRIMARY KEY, v INTEGER)`)
	require.NoError(t, err)

	require.NoError(t, c.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, c.Rebind(`INSERT INTO kv (k, v) VALUES (?, ?)`), "a", 1)
		return err
	}))

	rollback := errors.New("abort")
	err = c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES ('b', 2)`); err != nil {
			return err
		}
		return rollback
	})
	assert.ErrorIs(t, err, rollback)

	var n int
	require.NoError(t, c.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv`).Scan(&n))
	assert.Equal(t, 1, n)
	assert.NoError(t, c.Ping(ctx))
}

func TestRebind(t *testing.T) {
	pg := &Client{Driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.Rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
	lite := &Client{Driver: DriverSQLite}
	assert.Equal(t, "a = ?", lite.Rebind("a = ?"))
}

func TestRejectsUnknownDriver(t *testing.T) {
	_, err := New(config.DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)
}
