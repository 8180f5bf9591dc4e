package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		assert.Empty(t, config.Database.Path, "the default store lives under the XDG data dir")
		assert.Equal(t, "library", config.SchemaName())
		assert.Equal(t, 5000, config.Database.BusyTimeout)
		assert.Equal(t, time.Second, config.CancelGrace())
		assert.Contains(t, config.Library.Extensions, "flac")
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		require.NoError(t, CreateConfigFile(configPath))

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().Database.Path, config.Database.Path)

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		testConfig := `[database]
path = "/custom/path.db"
schema = "artwork"
max_open_conns = 20

[library]
root = "/music"
copy_on_import = true
extensions = ["MP3", ".flac", ""]
scan_rate = 25

[transactions]
cancel_grace = "250ms"

[log]
level = "debug"
`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		config, err := LoadConfig(configPath)
		require.NoError(t, err)

		assert.Equal(t, "/custom/path.db", config.Database.Path)
		assert.Equal(t, "artwork", config.SchemaName())
		assert.Equal(t, 20, config.Database.MaxOpenConns)
		assert.Equal(t, 5000, config.Database.BusyTimeout, "unset keys keep their defaults")
		assert.Equal(t, "/music", config.LibraryRoot())
		assert.True(t, config.Library.CopyOnImport)
		assert.Equal(t, 250*time.Millisecond, config.CancelGrace())
		assert.Equal(t, map[string]struct{}{".mp3": {}, ".flac": {}}, config.ExtensionSet())
	})

	t.Run("LoadConfig rejects invalid values", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{name: "negative scan rate", body: "[library]\nscan_rate = -1\n"},
			{name: "bad grace", body: "[transactions]\ncancel_grace = \"soon\"\n"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				configPath := filepath.Join(t.TempDir(), "config.toml")
				require.NoError(t, os.WriteFile(configPath, []byte(tt.body), 0644))

				_, err := LoadConfig(configPath)
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
			})
		}
	})

	t.Run("DatabasePath falls back to XDG", func(t *testing.T) {
		dataHome := t.TempDir()
		t.Cleanup(xdg.Reload)
		t.Setenv("XDG_DATA_HOME", dataHome)
		xdg.Reload()

		path, err := DefaultConfig().DatabasePath()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dataHome, "cadence", "library.db"), path)
	})

	t.Run("DatabasePath prefers the configured path", func(t *testing.T) {
		config := DefaultConfig()
		config.Database.Path = "/srv/music/library.db"

		path, err := config.DatabasePath()
		require.NoError(t, err)
		assert.Equal(t, "/srv/music/library.db", path)
	})
}
