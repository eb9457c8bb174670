package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestDefaults tests that the defaults validate
func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 16, cfg.Databases)
	require.Equal(t, "dump.rdb", cfg.DBFilename)
	require.True(t, cfg.RDBCompression)
	require.True(t, cfg.RDBChecksum)
}

// TestLoadWithoutFile tests resolution from defaults only
func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 16, cfg.Databases)
}

// TestLoadFromFile tests the config file layer
func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cedar.yaml")
	content := "databases: 4\nmaxmemory: 1048576\nloglevel: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Databases)
	require.Equal(t, int64(1048576), cfg.MaxMemory)
	require.Equal(t, "debug", cfg.LogLevel)
	// untouched options keep their defaults
	require.Equal(t, 512, cfg.HashMaxZiplistEntries)
}

// TestLoadEnvOverride tests the environment layer
func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CEDAR_DATABASES", "32")
	t.Setenv("CEDAR_SET_MAX_INTSET_ENTRIES", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 32, cfg.Databases)
	require.Equal(t, 7, cfg.SetMaxIntsetEntries)
}

// TestValidate tests the invariant checks
func TestValidate(t *testing.T) {
	for _, mutate := range []func(*Config){
		func(c *Config) { c.Databases = 0 },
		func(c *Config) { c.MaxMemory = -1 },
		func(c *Config) { c.HashMaxZiplistEntries = -1 },
		func(c *Config) { c.DBFilename = "" },
		func(c *Config) { c.SaveAfterChanges = -1 },
	} {
		cfg := Default()
		mutate(cfg)
		require.Error(t, cfg.Validate(), "mutated config %+v", cfg)
	}
}

// TestLoadRejectsInvalidFile tests that a broken file fails loudly
func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cedar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("databases: 0\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

// TestWatch tests the runtime reload
func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cedar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("databases: 4\n"), 0o644))

	reloaded := make(chan *Config, 1)
	stop, err := Watch(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("databases: 8\n"), 0o644))

	select {
	case cfg := <-reloaded:
		require.Equal(t, 8, cfg.Databases)
	case <-time.After(2 * time.Second):
		t.Fatal("config reload never arrived")
	}
}

// TestString tests the human readable rendering
func TestString(t *testing.T) {
	s := Default().String()
	for _, want := range []string{"KEYSPACE", "ENCODINGS", "SNAPSHOTS", "LOGGING", "dump.rdb"} {
		require.Contains(t, s, want)
	}
}
