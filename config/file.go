package config

import (
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

// fileConfig mirrors Config for YAML input.  Durations are strings parsed with
// time.ParseDuration; unset fields keep their Default() values.
type fileConfig struct {
	WorkerCount        *int    `json:"workerCount,omitempty"`
	QueueSize          *int    `json:"queueSize,omitempty"`
	JobTimeout         *string `json:"jobTimeout,omitempty"`
	MaxRetries         *int    `json:"maxRetries,omitempty"`
	RetryDelay         *string `json:"retryDelay,omitempty"`
	DefaultQuality     *int    `json:"defaultQuality,omitempty"`
	CacheFormat        *string `json:"cacheFormat,omitempty"`
	MaxImageBytes      *int64  `json:"maxImageBytes,omitempty"`
	ChunkSize          *int    `json:"chunkSize,omitempty"`
	CachePolicy        *string `json:"cachePolicy,omitempty"`
	MemoryCacheEnabled *bool   `json:"memoryCacheEnabled,omitempty"`
	MemoryCacheEntries *int    `json:"memoryCacheEntries,omitempty"`
	Disk               *string `json:"disk,omitempty"`
	Filesystem         *struct {
		RootDir     string `json:"rootDir"`
		Permissions uint32 `json:"permissions,omitempty"`
	} `json:"filesystem,omitempty"`
	ObjectStore *struct {
		Bucket string `json:"bucket"`
		Prefix string `json:"prefix,omitempty"`
	} `json:"objectStore,omitempty"`
	LogLevel *string `json:"logLevel,omitempty"`
}

// LoadFile reads a YAML configuration file on top of Default() and validates
// the result.
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes YAML (or JSON) configuration bytes on top of Default().
func Parse(raw []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.UnmarshalStrict(raw, &fc); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}

	c := Default()
	setInt(&c.WorkerCount, fc.WorkerCount)
	setInt(&c.QueueSize, fc.QueueSize)
	setInt(&c.MaxRetries, fc.MaxRetries)
	setInt(&c.DefaultQuality, fc.DefaultQuality)
	setInt(&c.ChunkSize, fc.ChunkSize)
	setInt(&c.MemoryCacheEntries, fc.MemoryCacheEntries)
	if fc.MaxImageBytes != nil {
		c.MaxImageBytes = *fc.MaxImageBytes
	}
	if fc.CacheFormat != nil {
		c.CacheFormat = *fc.CacheFormat
	}
	if fc.CachePolicy != nil {
		c.CachePolicy = CachePolicy(*fc.CachePolicy)
	}
	if fc.MemoryCacheEnabled != nil {
		c.MemoryCacheEnabled = *fc.MemoryCacheEnabled
	}
	if fc.Disk != nil {
		c.Disk = DiskBackend(*fc.Disk)
	}
	if fc.Filesystem != nil {
		c.Filesystem = FilesystemConfig{RootDir: fc.Filesystem.RootDir, Permissions: fc.Filesystem.Permissions}
	}
	if fc.ObjectStore != nil {
		c.ObjectStore = ObjectStoreConfig{Bucket: fc.ObjectStore.Bucket, Prefix: fc.ObjectStore.Prefix}
	}
	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}
	if err := setDuration(&c.JobTimeout, fc.JobTimeout, "jobTimeout"); err != nil {
		return Config{}, err
	}
	if err := setDuration(&c.RetryDelay, fc.RetryDelay, "retryDelay"); err != nil {
		return Config{}, err
	}

	if err := Validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, field string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", field, err)
	}
	*dst = d
	return nil
}
