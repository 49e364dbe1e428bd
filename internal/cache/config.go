package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	// DefaultCapacityMB bounds each module store unless overridden.
	DefaultCapacityMB = 500
	// DefaultCompressionThreshold is the value size in bytes above which
	// entries are compressed.
	DefaultCompressionThreshold = 100
	// StoreExt is the file extension of module stores.
	StoreExt = ".db"

	envDisableForTests = "CACHE_DISABLE_FOR_TESTS"
	envHome            = "MEDKIT_HOME"
)

// Options are the caller-supplied knobs for NewConfig. Zero values select
// defaults.
type Options struct {
	// Root is the directory holding module stores. Defaults to DefaultRoot().
	Root string
	// Path overrides the store file path entirely.
	Path string
	// CapacityMB bounds the store. CapacityBytes wins when both are set.
	CapacityMB    int
	CapacityBytes int64
	// NoStore disables the store for this module.
	NoStore bool
	// Overwrite skips reads and always regenerates, then stores the result.
	Overwrite bool
	// CompressionThreshold in bytes. Zero means the default, negative disables.
	CompressionThreshold int
	// TestMode reports whether caching must be bypassed. Defaults to
	// RunningUnderTest.
	TestMode func() bool
}

// Config is the resolved, immutable storage configuration for one module.
type Config struct {
	module               string
	path                 string
	capacityBytes        int64
	compressionThreshold int
	enabled              bool
	overwrite            bool
	testMode             bool
}

// NewConfig resolves opts for module. Test mode forces the store off
// regardless of the other options.
func NewConfig(module string, opts Options) Config {
	module = strings.TrimSpace(module)
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		root := strings.TrimSpace(opts.Root)
		if root == "" {
			root = DefaultRoot()
		}
		path = filepath.Join(root, module+StoreExt)
	}
	capacity := opts.CapacityBytes
	if capacity <= 0 && opts.CapacityMB > 0 {
		capacity = int64(opts.CapacityMB) << 20
	}
	if capacity <= 0 {
		capacity = DefaultCapacityMB << 20
	}
	threshold := opts.CompressionThreshold
	switch {
	case threshold == 0:
		threshold = DefaultCompressionThreshold
	case threshold < 0:
		threshold = 0
	}
	testMode := opts.TestMode
	if testMode == nil {
		testMode = RunningUnderTest
	}
	tm := testMode()
	return Config{
		module:               module,
		path:                 path,
		capacityBytes:        capacity,
		compressionThreshold: threshold,
		enabled:              !opts.NoStore && !tm && module != "",
		overwrite:            opts.Overwrite,
		testMode:             tm,
	}
}

func (c Config) Module() string            { return c.module }
func (c Config) Path() string              { return c.path }
func (c Config) CapacityBytes() int64      { return c.capacityBytes }
func (c Config) CompressionThreshold() int { return c.compressionThreshold }
func (c Config) Enabled() bool             { return c.enabled }
func (c Config) Overwrite() bool           { return c.overwrite }
func (c Config) TestMode() bool            { return c.testMode }

// StoreOptions returns the options OpenStore needs for this module.
func (c Config) StoreOptions() StoreOptions {
	return StoreOptions{CapacityBytes: c.capacityBytes, CompressionThreshold: c.compressionThreshold}
}

// DefaultRoot is $MEDKIT_HOME/storage, or ./storage when MEDKIT_HOME is unset.
func DefaultRoot() string {
	if home := strings.TrimSpace(os.Getenv(envHome)); home != "" {
		return filepath.Join(home, "storage")
	}
	return "storage"
}

// RunningUnderTest reports whether the process is a test binary or
// CACHE_DISABLE_FOR_TESTS is set to a truthy value.
func RunningUnderTest() bool {
	if truthy(os.Getenv(envDisableForTests)) {
		return true
	}
	return testing.Testing()
}

// Never reports false. Tests pass it as Options.TestMode to exercise the store.
func Never() bool { return false }

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
