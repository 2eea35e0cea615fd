package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/imagefetch/config"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, config.Validate(cfg))
	assert.Equal(t, config.PolicyAutomatic, cfg.CachePolicy)
	assert.Equal(t, config.DiskNone, cfg.Disk)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"quality too low", func(c *config.Config) { c.DefaultQuality = 0 }},
		{"quality too high", func(c *config.Config) { c.DefaultQuality = 101 }},
		{"chunk size", func(c *config.Config) { c.ChunkSize = 0 }},
		{"policy", func(c *config.Config) { c.CachePolicy = "sometimes" }},
		{"memory entries", func(c *config.Config) { c.MemoryCacheEntries = 0 }},
		{"filesystem root", func(c *config.Config) { c.Disk = config.DiskFilesystem }},
		{"object store bucket", func(c *config.Config) { c.Disk = config.DiskObjectStore }},
		{"disk backend", func(c *config.Config) { c.Disk = "tape" }},
		{"cache format", func(c *config.Config) { c.CacheFormat = "gif" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			assert.Error(t, config.Validate(cfg))
		})
	}
}

func TestParse(t *testing.T) {
	raw := []byte(`
workerCount: 3
jobTimeout: 5s
retryDelay: 250ms
cachePolicy: store-encoded
cacheFormat: webp
memoryCacheEnabled: false
disk: filesystem
filesystem:
  rootDir: /var/cache/images
logLevel: debug
`)
	cfg, err := config.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.WorkerCount)
	assert.Equal(t, 5*time.Second, cfg.JobTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, config.PolicyStoreEncoded, cfg.CachePolicy)
	assert.Equal(t, "webp", cfg.CacheFormat)
	assert.False(t, cfg.MemoryCacheEnabled)
	assert.Equal(t, config.DiskFilesystem, cfg.Disk)
	assert.Equal(t, "/var/cache/images", cfg.Filesystem.RootDir)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Unset fields keep their defaults.
	assert.Equal(t, config.Default().QueueSize, cfg.QueueSize)
	assert.Equal(t, config.Default().DefaultQuality, cfg.DefaultQuality)
}

func TestParse_Errors(t *testing.T) {
	for name, raw := range map[string]string{
		"unknown field":    "workers: 3\n",
		"bad duration":     "jobTimeout: soon\n",
		"invalid policy":   "cachePolicy: never\n",
		"missing root dir": "disk: filesystem\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := config.Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imagefetch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queueSize: 8\n"), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.QueueSize)

	_, err = config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
