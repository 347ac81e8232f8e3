package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parceltrack/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, dialect, err := db.Open(ctx, db.Config{Driver: db.DriverSQLite, DataDir: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(ctx, conn, dialect))
	require.NoError(t, Migrate(ctx, conn, dialect))

	v, err := Version(ctx, conn)
	require.NoError(t, err)
	migrations, err := loadMigrations(dialect)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, migrations[len(migrations)-1].Version, v)

	for _, table := range []string{"parcels", "issues", "history_events", "containers", "api_keys"} {
		var name string
		err := conn.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestPostgresMigrationsEmbedded(t *testing.T) {
	migrations, err := loadMigrations(db.Dialect{Driver: db.DriverPostgres})
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)
}
