package tasks

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/desertthunder/cadence/internal/database"
	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/repositories"
)

// PlaylistSave replaces the membership of a playlist, creating the playlist when it is new.
//
// Entries are written in the order given. Tracks without a stored ID are skipped.
type PlaylistSave struct {
	*Transaction

	playlist string
	tracks   []*models.Track
	saved    atomic.Pointer[models.Playlist]
}

func NewPlaylistSave(lc *LibraryContext, name string, tracks ...*models.Track) *PlaylistSave {
	p := &PlaylistSave{playlist: name, tracks: tracks}
	p.Transaction = newTransaction(lc, KindPlaylistSave, "Saving Playlist", p)
	return p
}

// Playlist returns the saved playlist row once the body has run.
func (p *PlaylistSave) Playlist() *models.Playlist { return p.saved.Load() }

func (p *PlaylistSave) Tables() []string { return []string{"Playlists", "PlaylistEntries"} }

func (p *PlaylistSave) Run(ctx context.Context, conn *database.Conn) error {
	repo := repositories.NewPlaylistRepository(conn)
	p.SetTotal(len(p.tracks))
	p.SetStatus("%s", p.playlist)

	playlist, created, err := repo.FindOrCreate(ctx, p.playlist)
	if err != nil {
		return fmt.Errorf("failed to resolve playlist %q: %w", p.playlist, err)
	}
	p.saved.Store(playlist)

	if !created {
		if _, err := repo.ClearEntries(ctx, playlist.ID); err != nil {
			return err
		}
	}

	order := 0
	for _, track := range p.tracks {
		if p.CancelRequested() {
			return nil
		}
		start := time.Now()

		if track == nil || track.ID == 0 {
			p.Step()
			continue
		}

		entry := &models.PlaylistEntry{PlaylistID: playlist.ID, TrackID: track.ID, ViewOrder: order}
		if err := repo.AddEntry(ctx, entry); err != nil {
			p.logger.Debug("skipping entry", "track", track.ID, "error", err)
		} else {
			order++
		}
		p.Step()
		p.UpdateAverageDuration(start)
	}

	p.logger.Info("playlist saved", "playlist", playlist.Name, "entries", order, "created", created)
	return nil
}
