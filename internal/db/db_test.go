package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := `SELECT id FROM parcels WHERE state=? AND id>? LIMIT ?`
	assert.Equal(t, q, Dialect{Driver: DriverSQLite}.Rebind(q))
	assert.Equal(t, `SELECT id FROM parcels WHERE state=$1 AND id>$2 LIMIT $3`, Dialect{Driver: DriverPostgres}.Rebind(q))
}

func TestFormatTimeSortsLexically(t *testing.T) {
	a := time.Date(2024, 3, 1, 9, 0, 0, 5, time.UTC)
	b := a.Add(time.Millisecond)
	assert.Less(t, FormatTime(a), FormatTime(b))

	parsed, err := ParseTime(FormatTime(a))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(a))

	parsed, err = ParseTime("2024-03-01T09:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 2024, parsed.Year())
}

func TestOpenSQLiteAndUniqueViolation(t *testing.T) {
	ctx := context.Background()
	conn, dialect, err := Open(ctx, Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, DriverSQLite, dialect.Driver)

	_, err = conn.ExecContext(ctx, `CREATE TABLE t(id TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO t(id) VALUES ('a')`)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO t(id) VALUES ('a')`)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(nil))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, _, err := Open(context.Background(), Config{Driver: "oracle"})
	require.Error(t, err)

	_, _, err = Open(context.Background(), Config{Driver: DriverPostgres})
	require.Error(t, err)
}
