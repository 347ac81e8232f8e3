package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parceltrack/internal/domain"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "fs", cfg.Blob.Driver)
	assert.True(t, cfg.Parcels.EnforceTransitions)
	assert.False(t, cfg.Issues.RequireParcel)
	assert.Equal(t, 10, cfg.Listing.DefaultPageSize)
	assert.Equal(t, []string{"*"}, cfg.RolePermissions()["admin"])

	table, err := cfg.TransitionTable()
	require.NoError(t, err)
	assert.True(t, table.Allows(domain.StateReceived, domain.StateInTransitDomesticA))
	assert.True(t, table.Allows(domain.StateInTransitDomesticA, domain.StateInWarehouseA))
	assert.False(t, table.Allows(domain.StateInWarehouseA, domain.StateReceived))
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
server:
  addr: 0.0.0.0:9000
parcels:
  enforce_transitions: false
auth:
  anonymous_role: reader
  roles:
    reader:
      permissions: [parcel.read]
`))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.False(t, cfg.Parcels.EnforceTransitions)
	assert.Len(t, cfg.Auth.Roles, 1)

	table, err := cfg.TransitionTable()
	require.NoError(t, err)
	assert.True(t, table.Allows(domain.StateInWarehouseA, domain.StateReceived))
}

func TestFromYAMLReplacesTransitionTable(t *testing.T) {
	cfg, err := FromYAML([]byte(`
parcels:
  transitions:
    Received: [InTransitDomesticA]
`))
	require.NoError(t, err)
	table, err := cfg.TransitionTable()
	require.NoError(t, err)
	assert.True(t, table.Allows(domain.StateReceived, domain.StateInTransitDomesticA))
	assert.False(t, table.Allows(domain.StateReceived, domain.StateInWarehouseA))
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"unknown state":      "parcels:\n  transitions:\n    Received: [Lost]\n",
		"bad driver":         "database:\n  driver: mysql\n",
		"postgres no dsn":    "database:\n  driver: postgres\n",
		"s3 no bucket":       "blob:\n  driver: s3\n",
		"missing anon role":  "auth:\n  anonymous_role: ghost\n",
		"page size":          "listing:\n  default_page_size: 0\n",
		"relative base path": "server:\n  base_path: v1\n",
		"bad yaml":           "server: [",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(raw))
			require.Error(t, err)
		})
	}
}

func TestLoadAndLoadOptional(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir)

	_, err := Load(path)
	require.Error(t, err)

	cfg, err := LoadOptional(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(path, []byte(GenerateDefault()), 0o644))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "parceltrack.yml"), path)

	out, err := cfg.Marshal()
	require.NoError(t, err)
	again, err := FromYAML(out)
	require.NoError(t, err)
	assert.Equal(t, cfg.Parcels.Transitions, again.Parcels.Transitions)
}
