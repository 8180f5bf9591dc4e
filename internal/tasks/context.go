package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cadence/internal/database"
	"github.com/desertthunder/cadence/internal/library"
	"github.com/desertthunder/cadence/internal/metrics"
	"github.com/desertthunder/cadence/internal/repositories"
	"github.com/desertthunder/cadence/internal/shared"
)

// Options carries the engine settings concrete transactions read.
type Options struct {
	CancelGrace  time.Duration
	Extensions   map[string]struct{} // Lowercase, dot-prefixed
	LibraryRoot  string
	CopyOnImport bool
	ScanRate     float64 // Files per second, 0 is unlimited
}

// OptionsFromConfig maps a [shared.Config] onto [Options].
func OptionsFromConfig(c *shared.Config) Options {
	return Options{
		CancelGrace:  c.CancelGrace(),
		Extensions:   c.ExtensionSet(),
		LibraryRoot:  c.LibraryRoot(),
		CopyOnImport: c.Library.CopyOnImport,
		ScanRate:     c.Library.ScanRate,
	}
}

// LibraryContext is handed to every concrete transaction constructor in place of global state.
type LibraryContext struct {
	DB      *database.Database
	Library *library.Library
	Manager *Manager
	Logger  *log.Logger
	Options Options
}

// NewLibraryContext wires a fresh library index and manager around db.
func NewLibraryContext(db *database.Database, logger *log.Logger, opts Options) *LibraryContext {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if opts.CancelGrace <= 0 {
		opts.CancelGrace = time.Second
	}
	return &LibraryContext{
		DB:      db,
		Library: library.New(),
		Manager: NewManager(logger),
		Logger:  logger,
		Options: opts,
	}
}

// LoadLibrary fills the in-memory index from the Tracks table.
func (lc *LibraryContext) LoadLibrary(ctx context.Context) error {
	const worker = "library-load"

	conn, err := lc.DB.Worker(ctx, worker)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer lc.DB.Release(worker)

	if err := lc.Library.Load(ctx, repositories.NewTrackRepository(conn)); err != nil {
		return err
	}
	metrics.SetTracks(lc.Library.Len())
	lc.Logger.Debug("library loaded", "tracks", lc.Library.Len())
	return nil
}

// Close stops the manager, canceling whatever is still in flight.
func (lc *LibraryContext) Close(ctx context.Context) error {
	return lc.Manager.Close(ctx)
}
