package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/desertthunder/cadence/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsFromConfig(t *testing.T) {
	c := shared.DefaultConfig()
	c.Library.Root = "/srv/music"
	c.Library.ScanRate = 25
	c.Transactions.CancelGrace = "250ms"

	opts := OptionsFromConfig(c)

	assert.Equal(t, 250*time.Millisecond, opts.CancelGrace)
	assert.Equal(t, "/srv/music", opts.LibraryRoot)
	assert.Equal(t, 25.0, opts.ScanRate)
	assert.Contains(t, opts.Extensions, ".mp3")
	assert.Contains(t, opts.Extensions, ".flac")
	assert.NotContains(t, opts.Extensions, "mp3")
}

func TestNewLibraryContextDefaults(t *testing.T) {
	lc := NewLibraryContext(nil, nil, Options{})

	assert.Equal(t, time.Second, lc.Options.CancelGrace)
	assert.NotNil(t, lc.Logger)
	assert.NotNil(t, lc.Manager)
	assert.Equal(t, 0, lc.Library.Len())
	require.NoError(t, lc.Close(context.Background()))
}

func TestLoadLibrary(t *testing.T) {
	lc := newTestContext(t)
	seedTracks(t, lc, 4, 8, 15)

	fresh := NewLibraryContext(lc.DB, lc.Logger, lc.Options)
	require.NoError(t, fresh.LoadLibrary(context.Background()))

	assert.Equal(t, 3, fresh.Library.Len())
	track, ok := fresh.Library.Lookup(8)
	require.True(t, ok)
	assert.Equal(t, "file:///music/8.mp3", track.URI)
	assert.Equal(t, 0, lc.DB.WorkerCount(), "loading must release its connection")
	require.NoError(t, fresh.Close(context.Background()))
}
