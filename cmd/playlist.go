package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/cadence/internal/formatter"
	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/repositories"
	"github.com/desertthunder/cadence/internal/shared"
	"github.com/desertthunder/cadence/internal/statement"
	"github.com/desertthunder/cadence/internal/tasks"
	"github.com/urfave/cli/v3"
)

// PlaylistSave replaces the membership of the named playlist with the given tracks.
func (r *Runner) PlaylistSave(ctx context.Context, cmd *cli.Command) error {
	name := cmd.String("name")
	ids := cmd.Int64Slice("track")
	if name == "" || len(ids) == 0 {
		return fmt.Errorf("%w: --name and --track", shared.ErrMissingArgument)
	}

	s, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer r.close(s)

	tracks := make([]*models.Track, 0, len(ids))
	for _, id := range ids {
		t, ok := s.Library.Lookup(id)
		if !ok {
			return fmt.Errorf("%w: %d", shared.ErrTrackNotFound, id)
		}
		tracks = append(tracks, t)
	}

	save := tasks.NewPlaylistSave(s.LibraryContext, name, tracks...)
	if err := save.Register(); err != nil {
		return err
	}
	if err := r.watch(ctx, s.Manager, save.Transaction); err != nil {
		return err
	}
	if err := save.LastError(); err != nil {
		return fmt.Errorf("playlist save failed: %w", err)
	}

	p := save.Playlist()
	return r.writePlain("✓ Saved playlist %q (id %d) with %d tracks\n", p.Name, p.ID, len(tracks))
}

// PlaylistRemove removes tracks from one playlist, leaving them in the library.
func (r *Runner) PlaylistRemove(ctx context.Context, cmd *cli.Command) error {
	playlistID := cmd.Int64("playlist")
	ids := cmd.Int64Slice("track")
	if playlistID == 0 || len(ids) == 0 {
		return fmt.Errorf("%w: --playlist and --track", shared.ErrMissingArgument)
	}

	s, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer r.close(s)

	remove := tasks.NewPlaylistTrackRemove(s.LibraryContext, playlistID, ids...)
	if err := remove.Register(); err != nil {
		return err
	}
	if err := r.watch(ctx, s.Manager, remove.Transaction); err != nil {
		return err
	}
	if err := remove.LastError(); err != nil {
		return fmt.Errorf("playlist remove failed: %w", err)
	}

	return r.writePlain("✓ Removed %d entries from playlist %d\n", remove.Removed(), playlistID)
}

// PlaylistShow renders a playlist's tracks in their saved order.
func (r *Runner) PlaylistShow(ctx context.Context, cmd *cli.Command) error {
	playlistID := cmd.Int64("playlist")
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	s, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer r.close(s)

	playlist, err := r.lookupPlaylist(ctx, s, playlistID)
	if err != nil {
		return err
	}

	load := tasks.NewSqlLoad(s.LibraryContext, PlaylistTracksStatement(playlistID))
	load.SetName(fmt.Sprintf("Loading %s", playlist.Name))

	tracks, err := r.collect(ctx, s, load.Transaction)
	if err != nil {
		return err
	}
	if err := load.LastError(); err != nil {
		return fmt.Errorf("playlist load failed: %w", err)
	}
	return r.render(cmd, format, playlist.Name, tracks)
}

// PlaylistTracksStatement selects a playlist's tracks in view order.
func PlaylistTracksStatement(playlistID int64) statement.Statement {
	return statement.Raw(
		"SELECT t.* FROM Tracks t JOIN PlaylistEntries e ON e.TrackID = t.TrackID WHERE e.PlaylistID = ? ORDER BY e.ViewOrder",
		playlistID,
	)
}

func (r *Runner) lookupPlaylist(ctx context.Context, s *session, id int64) (*models.Playlist, error) {
	const worker = "cli"

	conn, err := s.DB.Worker(ctx, worker)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer s.DB.Release(worker)

	return repositories.NewPlaylistRepository(conn).Get(ctx, id)
}
