package tasks

import (
	"context"
	"sync/atomic"

	"github.com/desertthunder/cadence/internal/database"
	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/repositories"
)

// TrackInfoSave persists already-loaded tracks one by one without progress display.
//
// Tracks that fail to save are marked pending in the library so a later write cycle can retry
// them through a [Resaver].
type TrackInfoSave struct {
	*Transaction

	tracks []*models.Track
	failed atomic.Int64
}

func NewTrackInfoSave(lc *LibraryContext, tracks ...*models.Track) *TrackInfoSave {
	s := &TrackInfoSave{tracks: tracks}
	s.Transaction = newTransaction(lc, KindTrackInfoSave, "Saving Track Info", s)
	s.setPresentation(false, false)
	return s
}

// Failed returns how many tracks could not be saved.
func (s *TrackInfoSave) Failed() int { return int(s.failed.Load()) }

func (s *TrackInfoSave) Tables() []string { return []string{"Tracks"} }

func (s *TrackInfoSave) Run(ctx context.Context, conn *database.Conn) error {
	repo := repositories.NewTrackRepository(conn)
	s.SetTotal(len(s.tracks))

	for i, track := range s.tracks {
		if s.CancelRequested() {
			for _, rest := range s.tracks[i:] {
				s.lc.Library.MarkPending(rest)
			}
			return nil
		}

		if err := s.save(ctx, repo, track); err != nil {
			s.failed.Add(1)
			s.lc.Library.MarkPending(track)
			s.logger.Debug("track save failed", "uri", track.URI, "error", err, "kind", database.KindOf(err))
		}
		s.Step()
	}
	return nil
}

func (s *TrackInfoSave) save(ctx context.Context, repo *repositories.TrackRepository, track *models.Track) error {
	if track.ID != 0 {
		return repo.Update(ctx, track)
	}

	stored, _, err := repo.EnsureTrack(ctx, track)
	if err != nil {
		return err
	}
	track.ID = stored.ID
	s.lc.Library.Add(track)
	return nil
}
