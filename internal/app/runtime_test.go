package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parceltrack/internal/blob"
	"parceltrack/internal/config"
	"parceltrack/internal/domain"
)

func TestOpenRuntime(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.DataDir = dir
	cfg.Blob.FS.Root = filepath.Join(dir, "attachments")

	rt, err := Open(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })

	assert.Equal(t, blob.DriverFilesystem, rt.Blobs.Driver())
	assert.Equal(t, filepath.Join(dir, "attachments"), rt.FilesDir())
	require.NotNil(t, rt.Engine.Metrics)

	p, err := rt.Engine.ReceiveParcel(context.Background(), "PKG1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateReceived, p.CurrentState)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "mysql"
	_, err := Open(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestOpenBlobStore(t *testing.T) {
	cfg := config.Default()
	cfg.Blob.Driver = "memory"
	st, err := OpenBlobStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, blob.DriverMemory, st.Driver())

	cfg.Blob.Driver = "tape"
	_, err = OpenBlobStore(context.Background(), cfg)
	require.Error(t, err)
}
