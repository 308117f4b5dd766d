package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

func writeTempTrace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ora_12345.trc")
	require.NoError(t, os.WriteFile(path, []byte("Trace file ora_12345.trc\n"), 0o644))
	return path
}

func TestConfigIdleEvents(t *testing.T) {
	t.Run("empty list", func(t *testing.T) {
		c := &Config{}
		assert.Nil(t, c.IdleEvents())
	})

	t.Run("splits and trims", func(t *testing.T) {
		c := &Config{IdleEventList: " PX Idle Wait , pipe get ,,"}
		assert.Equal(t, []string{"PX Idle Wait", "pipe get"}, c.IdleEvents())
	})
}

func TestConfigValidateDerivesPaths(t *testing.T) {
	trace := writeTempTrace(t)
	c := &Config{
		TracePath: trace,
		RocksDB:   types.DefaultRocksDBSettings(),
		DryRun:    true,
	}
	require.NoError(t, c.Validate())

	assert.Equal(t, trace+".trcprof", c.WorkDir)
	assert.Equal(t, trace+".report.txt", c.ReportPath)
	assert.Equal(t, filepath.Join(c.WorkDir, "records"), c.RecordStorePath)
	assert.Equal(t, filepath.Join(c.WorkDir, "meta", "meta.mdbx"), c.MetaStorePath)
	assert.Equal(t, filepath.Join(c.WorkDir, "etl-tmp"), c.EtlTmpPath)
	assert.Equal(t, filepath.Join(c.WorkDir, "logs"), c.LogDir)
	assert.Equal(t, trace, c.Identity.Path)
	assert.Equal(t, int64(25), c.Identity.Size)
	assert.Equal(t, float64(types.DefaultRAMWarningGB), c.RAMWarningGB)

	// Dry-run must not create the workspace.
	_, err := os.Stat(c.WorkDir)
	assert.True(t, os.IsNotExist(err))
}

func TestConfigLineNumbersImpliesVerbose(t *testing.T) {
	trace := writeTempTrace(t)
	c := &Config{
		TracePath:   trace,
		LineNumbers: true,
		RocksDB:     types.DefaultRocksDBSettings(),
		DryRun:      true,
	}
	require.NoError(t, c.Validate())
	assert.True(t, c.Verbose, "line-number annotation is a verbose sub-mode")
}

func TestConfigValidateCreatesWorkspace(t *testing.T) {
	trace := writeTempTrace(t)
	c := &Config{
		TracePath: trace,
		WorkDir:   filepath.Join(t.TempDir(), "work"),
		RocksDB:   types.DefaultRocksDBSettings(),
	}
	require.NoError(t, c.Validate())

	for _, dir := range []string{c.RecordStorePath, filepath.Dir(c.MetaStorePath), c.EtlTmpPath, c.LogDir} {
		fi, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, fi.IsDir())
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Run("missing trace argument", func(t *testing.T) {
		c := &Config{DryRun: true}
		assert.Error(t, c.Validate())
	})

	t.Run("trace file does not exist", func(t *testing.T) {
		c := &Config{TracePath: filepath.Join(t.TempDir(), "nope.trc"), DryRun: true}
		assert.Error(t, c.Validate())
	})

	t.Run("trace path is a directory", func(t *testing.T) {
		c := &Config{TracePath: t.TempDir(), DryRun: true}
		assert.Error(t, c.Validate())
	})
}

func TestConfigFileMerging(t *testing.T) {
	trace := writeTempTrace(t)
	cfgPath := filepath.Join(t.TempDir(), "trcprof.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
idle_events = ["PX Idle Wait", "pipe get"]
ram_warning_gb = 16
line_numbers = true

[rocksdb]
write_buffer_size_mb = 128
block_cache_size_mb = 512
`), 0o644))

	t.Run("file values apply when flags unset", func(t *testing.T) {
		c := &Config{
			TracePath:  trace,
			ConfigFile: cfgPath,
			RocksDB:    types.DefaultRocksDBSettings(),
			DryRun:     true,
			setFlags:   map[string]bool{},
		}
		require.NoError(t, c.Validate())

		assert.Equal(t, []string{"PX Idle Wait", "pipe get"}, c.IdleEvents())
		assert.Equal(t, 16.0, c.RAMWarningGB)
		assert.True(t, c.LineNumbers)
		assert.True(t, c.Verbose, "line_numbers from the config file implies verbose")
		assert.Equal(t, 128, c.RocksDB.WriteBufferSizeMB)
		assert.Equal(t, 512, c.RocksDB.BlockCacheSizeMB)
	})

	t.Run("explicit flags win over file", func(t *testing.T) {
		c := &Config{
			TracePath:     trace,
			ConfigFile:    cfgPath,
			IdleEventList: "SQL*Net break/reset to client",
			RAMWarningGB:  4,
			RocksDB:       types.DefaultRocksDBSettings(),
			DryRun:        true,
			setFlags: map[string]bool{
				"idle-events":    true,
				"ram-warn-gb":    true,
				"block-cache-mb": true,
			},
		}
		c.RocksDB.BlockCacheSizeMB = 1024
		require.NoError(t, c.Validate())

		assert.Equal(t, []string{"SQL*Net break/reset to client"}, c.IdleEvents())
		assert.Equal(t, 4.0, c.RAMWarningGB)
		assert.Equal(t, 1024, c.RocksDB.BlockCacheSizeMB)
		// Settings sections without a matching flag still come from the file.
		assert.Equal(t, 128, c.RocksDB.WriteBufferSizeMB)
	})

	t.Run("unknown key rejected", func(t *testing.T) {
		badPath := filepath.Join(t.TempDir(), "bad.toml")
		require.NoError(t, os.WriteFile(badPath, []byte("no_such_key = 1\n"), 0o644))
		c := &Config{
			TracePath:  trace,
			ConfigFile: badPath,
			RocksDB:    types.DefaultRocksDBSettings(),
			DryRun:     true,
			setFlags:   map[string]bool{},
		}
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no_such_key")
	})
}
