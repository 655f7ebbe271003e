package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StoreBackendBolt, cfg.Store.Backend)
	assert.Equal(t, "rackid", cfg.Mesos.RackIDAttributeKey)
	assert.Equal(t, "DEFAULT", cfg.Mesos.DefaultRackID)
	assert.Equal(t, "singularity/slaves", cfg.Store.SlaveRoot)
	assert.Equal(t, "singularity/racks", cfg.Store.RackRoot)
	assert.Equal(t, 30*time.Second, cfg.Intervals.UpstreamSync.Std())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
store:
  backend: consul
  consul_addr: consul.internal:8500
mesos:
  rack_id_attribute_key: zone
  default_rack_id: unknown
intervals:
  resync: 5m
  upstream_sync: 15s
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, StoreBackendConsul, cfg.Store.Backend)
	assert.Equal(t, "consul.internal:8500", cfg.Store.ConsulAddr)
	assert.Equal(t, "zone", cfg.Mesos.RackIDAttributeKey)
	assert.Equal(t, "unknown", cfg.Mesos.DefaultRackID)
	assert.Equal(t, 5*time.Minute, cfg.Intervals.Resync.Std())
	assert.Equal(t, 15*time.Second, cfg.Intervals.UpstreamSync.Std())

	// untouched keys keep their defaults
	assert.Equal(t, "singularity/slaves", cfg.Store.SlaveRoot)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: zookeeper\n"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("intervals:\n  resync: often\n"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}
