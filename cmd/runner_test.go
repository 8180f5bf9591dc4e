package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/desertthunder/cadence/internal/formatter"
	"github.com/desertthunder/cadence/internal/shared"
	tu "github.com/desertthunder/cadence/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a config pointing at a database in a fresh temp dir.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf("[database]\npath = %q\n\n[log]\nlevel = \"error\"\n%s", filepath.Join(dir, "library.db"), extra)
	tu.MustWriteFile(t, path, []byte(content))
	return path
}

// runApp runs the CLI with args against configPath and returns what the command wrote.
func runApp(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	r := NewRunner(RunnerOpts{
		Logger:   shared.NewLogger(io.Discard),
		Output:   &out,
		Progress: io.Discard,
	})

	app := newApp(r)
	app.Writer = io.Discard
	app.ErrWriter = io.Discard

	err := app.Run(context.Background(), append([]string{"cadence", "--config", configPath}, args...))
	return out.String(), err
}

// writeMusic lays out three tagged tracks and one non-audio file.
func writeMusic(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "music")
	tu.WriteTaggedFile(t, filepath.Join(root, "Low", "a.mp3"), tu.Tags{Title: "Sunflower", Artist: "Low", Album: "Things We Lost in the Fire", Track: "1"})
	tu.WriteTaggedFile(t, filepath.Join(root, "Low", "b.mp3"), tu.Tags{Title: "Dinosaur Act", Artist: "Low"})
	tu.WriteTaggedFile(t, filepath.Join(root, "Other", "c.mp3"), tu.Tags{Title: "Kerosene", Artist: "Big Black"})
	tu.MustWriteFile(t, filepath.Join(root, "notes.txt"), []byte("liner notes"))
	return root
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			progress := &bytes.Buffer{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				Progress:   progress,
			})

			assert.Same(t, config, runner.config)
			assert.Same(t, logger, runner.logger)
			assert.Equal(t, output, runner.output)
			assert.Equal(t, progress, runner.progress)
			assert.Equal(t, "/test/path/config.toml", runner.configPath)
		})

		t.Run("with nil dependencies uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			assert.NotNil(t, runner.config)
			assert.NotNil(t, runner.logger)
			assert.Equal(t, os.Stdout, runner.output)
			assert.Equal(t, os.Stderr, runner.progress)
			assert.Empty(t, runner.configPath)
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes formatted text", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			require.NoError(t, runner.writePlain("%d tracks\n", 3))
			require.NoError(t, runner.writePlainln("Next steps:"))
			assert.Equal(t, "3 tracks\n\nNext steps:\n", output.String())
		})

		t.Run("returns error on write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			assert.Error(t, runner.writePlain("test"))
			assert.Error(t, runner.writePlainln("test"))
		})

		t.Run("header survives a partial writer", func(t *testing.T) {
			output := &bytes.Buffer{}
			w := tu.NewLimitedWriter(2, 0, output)
			runner := NewRunner(RunnerOpts{Output: &w})

			runner.writePlainHeader("Library")
			assert.Contains(t, output.String(), "Library")
			assert.Error(t, runner.writePlain("after the limit"))
		})
	})
}

func TestBefore(t *testing.T) {
	t.Run("loads the config file", func(t *testing.T) {
		path := writeConfig(t, "\n[library]\nscan_rate = 2.5\n")
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), ConfigPath: path})

		require.NoError(t, runner.loadConfig())
		assert.Equal(t, 2.5, runner.config.Library.ScanRate)
		assert.Equal(t, "error", runner.config.Log.Level)
		assert.NotEmpty(t, runner.config.Library.Extensions, "unset keys keep their defaults")
	})

	t.Run("missing config keeps defaults", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), ConfigPath: filepath.Join(t.TempDir(), "absent.toml")})
		defaults := runner.config

		require.NoError(t, runner.loadConfig())
		assert.Same(t, defaults, runner.config)
	})

	t.Run("invalid config fails every command", func(t *testing.T) {
		path := writeConfig(t, "\n[transactions]\ncancel_grace = \"soon\"\n")

		_, err := runApp(t, path, "list")
		assert.True(t, errors.Is(err, shared.ErrInvalidConfig), "got %v", err)
	})
}

func TestMetricsServer(t *testing.T) {
	runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard)})

	runner.serveMetrics("127.0.0.1:0")
	require.NotNil(t, runner.metrics)

	require.NoError(t, runner.After(context.Background(), nil))
	assert.Nil(t, runner.metrics)
	assert.NoError(t, runner.After(context.Background(), nil), "stopping twice is a no-op")
}

func TestSetup(t *testing.T) {
	tempDir := t.TempDir()
	originalDir := tu.MustGetwd(t)
	tu.MustChdir(t, tempDir)
	defer tu.MustChdir(t, originalDir)

	dataHome := t.TempDir()
	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_DATA_HOME", dataHome)
	xdg.Reload()

	out, err := runApp(t, "config.toml", "setup")
	require.NoError(t, err)

	dbPath := filepath.Join(dataHome, "cadence", "library.db")
	tu.AssertFileExists(t, "config.toml")
	tu.AssertFileExists(t, dbPath)
	assert.Contains(t, out, "✓ Library ready")
	assert.Contains(t, out, "Database: "+dbPath)

	_, err = runApp(t, "config.toml", "setup")
	assert.NoError(t, err, "setup is idempotent")
}

func TestCommands(t *testing.T) {
	config := writeConfig(t, "")
	music := writeMusic(t)

	t.Run("import", func(t *testing.T) {
		out, err := runApp(t, config, "import", music)
		require.NoError(t, err)
		assert.Equal(t, "✓ Imported 3 files\nLibrary: 3 tracks\n", out)
	})

	t.Run("import requires a path", func(t *testing.T) {
		_, err := runApp(t, config, "import")
		assert.True(t, errors.Is(err, shared.ErrMissingArgument))
	})

	t.Run("list", func(t *testing.T) {
		out, err := runApp(t, config, "list", "--format", "csv")
		require.NoError(t, err)
		assert.Contains(t, out, "ID,Title,Artist,Album,Genre,Year,Duration,URI")
		assert.Contains(t, out, "1,Sunflower,Low,Things We Lost in the Fire,")
		assert.Contains(t, out, "3,Kerosene,Big Black,")
	})

	t.Run("query", func(t *testing.T) {
		out, err := runApp(t, config, "query", "--sql", "SELECT * FROM Tracks WHERE Artist = 'Low' ORDER BY TrackID", "--format", "json")
		require.NoError(t, err)

		var records []formatter.TrackRecord
		require.NoError(t, json.Unmarshal([]byte(out), &records))
		require.Len(t, records, 2)
		assert.Equal(t, "Sunflower", records[0].Title)
		assert.Equal(t, "Dinosaur Act", records[1].Title)
	})

	t.Run("query rejects unknown formats", func(t *testing.T) {
		_, err := runApp(t, config, "query", "--sql", "SELECT * FROM Tracks", "--format", "yaml")
		assert.True(t, errors.Is(err, shared.ErrInvalidFlag))
	})

	t.Run("query reports broken sql", func(t *testing.T) {
		_, err := runApp(t, config, "query", "--sql", "SELECT Nope FROM Tracks")
		assert.ErrorContains(t, err, "query failed")
	})

	t.Run("query accepts question marks in quotes and comments", func(t *testing.T) {
		out, err := runApp(t, config, "query", "--sql", `SELECT * FROM Tracks WHERE Title = "Why?" -- any?`, "--format", "json")
		require.NoError(t, err)
		assert.Equal(t, "[]\n", out)
	})

	t.Run("query rejects unbound parameters", func(t *testing.T) {
		_, err := runApp(t, config, "query", "--sql", "SELECT * FROM Tracks WHERE TrackID = ?")
		assert.True(t, errors.Is(err, shared.ErrInvalidFlag), "got %v", err)

		_, err = runApp(t, config, "query", "--sql", "SELECT * FROM Tracks", "--count", "SELECT COUNT(*) FROM Tracks WHERE TrackID = ?")
		assert.True(t, errors.Is(err, shared.ErrInvalidFlag), "got %v", err)
	})

	t.Run("playlist save", func(t *testing.T) {
		out, err := runApp(t, config, "playlist", "save", "--name", "Mix", "--track", "3", "--track", "1")
		require.NoError(t, err)
		assert.Equal(t, "✓ Saved playlist \"Mix\" (id 1) with 2 tracks\n", out)
	})

	t.Run("playlist save rejects unknown tracks", func(t *testing.T) {
		_, err := runApp(t, config, "playlist", "save", "--name", "Ghosts", "--track", "99")
		assert.True(t, errors.Is(err, shared.ErrTrackNotFound))
	})

	t.Run("playlist show keeps saved order", func(t *testing.T) {
		out, err := runApp(t, config, "playlist", "show", "--playlist", "1")
		require.NoError(t, err)
		assert.Equal(t, "Mix\nTracks: 2\n\n1. Big Black - Kerosene\n2. Low - Sunflower\n", out)
	})

	t.Run("playlist show writes exports", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mix.md")
		out, err := runApp(t, config, "playlist", "show", "--playlist", "1", "--format", "markdown", "--output", path)
		require.NoError(t, err)
		assert.Contains(t, out, "✓ Wrote 2 tracks to "+path)
		assert.Contains(t, tu.MustReadFile(t, path), "# Mix")
	})

	t.Run("playlist show of an unknown playlist", func(t *testing.T) {
		_, err := runApp(t, config, "playlist", "show", "--playlist", "42")
		assert.True(t, errors.Is(err, shared.ErrPlaylistNotFound))
	})

	t.Run("playlist remove", func(t *testing.T) {
		out, err := runApp(t, config, "playlist", "remove", "--playlist", "1", "--track", "3")
		require.NoError(t, err)
		assert.Equal(t, "✓ Removed 1 entries from playlist 1\n", out)

		out, err = runApp(t, config, "playlist", "show", "--playlist", "1")
		require.NoError(t, err)
		assert.Equal(t, "Mix\nTracks: 1\n\n1. Low - Sunflower\n", out)
	})

	t.Run("remove", func(t *testing.T) {
		out, err := runApp(t, config, "remove", "--track", "1")
		require.NoError(t, err)
		assert.Equal(t, "✓ Removed 1 tracks\nLibrary: 2 tracks\n", out)

		out, err = runApp(t, config, "playlist", "show", "--playlist", "1")
		require.NoError(t, err)
		assert.Equal(t, "Mix\nTracks: 0\n\n", out, "removed tracks leave every playlist")
	})

	t.Run("re-import restores removed files only", func(t *testing.T) {
		out, err := runApp(t, config, "import", "--no-preload", music)
		require.NoError(t, err)
		assert.Equal(t, "✓ Imported 3 files\nLibrary: 3 tracks\n", out)
	})
}
