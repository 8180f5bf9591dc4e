package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/cadence/internal/formatter"
	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/shared"
	"github.com/desertthunder/cadence/internal/statement"
	"github.com/desertthunder/cadence/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Import registers a [tasks.FileLoad] over the path arguments and reports how many files landed.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("%w: at least one PATH is required", shared.ErrMissingArgument)
	}

	if cmd.Bool("tui") {
		restore, err := r.useFileLogger()
		if err != nil {
			return err
		}
		defer restore()
	}

	s, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer r.close(s)

	load := tasks.NewFileLoad(s.LibraryContext, !cmd.Bool("no-preload"), paths...)
	if cmd.IsSet("copy") {
		load.SetCopy(cmd.Bool("copy"))
	}

	if cmd.Bool("tui") {
		if err := r.runTUI(ctx, s, load.Transaction); err != nil {
			return err
		}
	} else {
		if err := load.Register(); err != nil {
			return err
		}
		if err := r.watch(ctx, s.Manager, load.Transaction); err != nil {
			return err
		}
	}

	if err := load.LastError(); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	r.writePlain("✓ Imported %d files", load.Imported())
	if n := load.Skipped(); n > 0 {
		r.writePlain(" (%d skipped)", n)
	}
	r.writePlain("\nLibrary: %d tracks\n", s.Library.Len())
	return nil
}

// List replays the in-memory library through a [tasks.LibraryLoad].
func (r *Runner) List(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	s, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer r.close(s)

	load := tasks.NewLibraryLoad(s.LibraryContext)
	tracks, err := r.collect(ctx, s, load.Transaction)
	if err != nil {
		return err
	}
	return r.render(cmd, format, "Library", tracks)
}

// Query streams the rows of --sql through a [tasks.SqlLoad].
func (r *Runner) Query(ctx context.Context, cmd *cli.Command) error {
	query := cmd.String("sql")
	if query == "" {
		return fmt.Errorf("%w: --sql", shared.ErrMissingArgument)
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	stmt, err := statement.Parse(query)
	if err != nil {
		return fmt.Errorf("%w: --sql: %v", shared.ErrInvalidFlag, err)
	}
	var countStmt *statement.Statement
	if count := cmd.String("count"); count != "" {
		c, err := statement.Parse(count)
		if err != nil {
			return fmt.Errorf("%w: --count: %v", shared.ErrInvalidFlag, err)
		}
		countStmt = &c
	}

	s, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer r.close(s)

	load := tasks.NewSqlLoad(s.LibraryContext, stmt)
	if countStmt != nil {
		load.WithCount(*countStmt)
	}

	tracks, err := r.collect(ctx, s, load.Transaction)
	if err != nil {
		return err
	}
	if err := load.LastError(); err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return r.render(cmd, format, "Query", tracks)
}

// Remove deletes tracks from the library through a [tasks.TrackRemove].
func (r *Runner) Remove(ctx context.Context, cmd *cli.Command) error {
	ids := cmd.Int64Slice("track")
	if len(ids) == 0 {
		return fmt.Errorf("%w: --track", shared.ErrMissingArgument)
	}

	s, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer r.close(s)

	for _, id := range ids {
		if _, ok := s.Library.Lookup(id); !ok {
			r.logger.Warn("track not in library", "id", id)
		}
	}

	remove := tasks.NewTrackRemove(s.LibraryContext, ids...)
	r.logger.Debug("removing tracks", "statement", remove.Statement().String())
	if err := remove.Register(); err != nil {
		return err
	}
	if err := r.watch(ctx, s.Manager, remove.Transaction); err != nil {
		return err
	}
	if err := remove.LastError(); err != nil {
		return fmt.Errorf("remove failed: %w", err)
	}

	r.writePlain("✓ Removed %d tracks\nLibrary: %d tracks\n", remove.Removed(), s.Library.Len())
	return nil
}

// collect registers t, gathers every track it announces and waits for it to finish.
func (r *Runner) collect(ctx context.Context, s *session, t *tasks.Transaction) ([]*models.Track, error) {
	var (
		mu     sync.Mutex
		tracks []*models.Track
	)
	t.OnHaveTrack(func(_ *tasks.Transaction, track *models.Track) {
		mu.Lock()
		tracks = append(tracks, track)
		mu.Unlock()
	})

	if err := t.Register(); err != nil {
		return nil, err
	}
	if err := r.watch(ctx, s.Manager, t); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return tracks, nil
}

// render writes tracks to --output when given, otherwise to the runner's output.
func (r *Runner) render(cmd *cli.Command, format formatter.Format, title string, tracks []*models.Track) error {
	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteExport(format, title, tracks, path)
		if err != nil {
			return err
		}
		r.logger.Info("export written", "path", written, "tracks", len(tracks))
		return r.writePlain("✓ Wrote %d tracks to %s\n", len(tracks), written)
	}
	return formatter.Write(r.output, format, title, tracks)
}
