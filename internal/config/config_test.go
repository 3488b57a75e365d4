package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
[terminal]
program = "kitty"
wm_class = "my_tabs"

[discovery]
attempts = 10
interval_ms = 250

[logs]
level = "debug"
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "kitty", cfg.Terminal.Program)
	assert.Equal(t, "my_tabs", cfg.Terminal.WMClass)
	assert.Equal(t, 10, cfg.Discovery.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Discovery.Interval())
	assert.Equal(t, "debug", cfg.Logs.Level)

	// Unset fields pick up defaults.
	assert.Equal(t, "json", cfg.Logs.Format)
	assert.Equal(t, 10, cfg.Logs.MaxSizeMB)
}

func TestLoadFilePartialSection(t *testing.T) {
	path := writeConfig(t, `
[terminal]
program = "foot"
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "foot", cfg.Terminal.Program)
	assert.Equal(t, "tabdeck_tab", cfg.Terminal.WMClass)
	assert.Equal(t, 50, cfg.Discovery.Attempts)
}

func TestLoadFileParseErrorFallsBackToDefaults(t *testing.T) {
	path := writeConfig(t, "this is not = [valid toml")

	cfg, err := LoadFile(path)
	require.Error(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadFileRejectsNonPositivePollValues(t *testing.T) {
	path := writeConfig(t, `
[discovery]
attempts = 0
interval_ms = -5
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Discovery.Attempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Discovery.Interval())
}

func TestHistoryEnabledDefaultsTrue(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.True(t, cfg.History.GetEnabled())

	path := writeConfig(t, `
[history]
enabled = false
`)
	cfg, err = LoadFile(path)
	require.NoError(t, err)
	assert.False(t, cfg.History.GetEnabled())
}

func TestPathsShareBaseDir(t *testing.T) {
	base, err := BaseDir()
	require.NoError(t, err)

	for name, fn := range map[string]func() (string, error){
		FileName:        Path,
		SessionFileName: SessionPath,
		HistoryFileName: HistoryPath,
	} {
		p, err := fn()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(base, name), p)
	}
}
