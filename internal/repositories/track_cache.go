package repositories

import (
	"context"
	"fmt"

	"github.com/desertthunder/cadence/internal/database"
	"github.com/desertthunder/cadence/internal/models"
)

// EnsureTrack inserts track unless a track with the same URI is already stored.
//
// Returns the stored track (with its ID) and whether it already existed. A unique constraint
// violation from a concurrent insert is treated as "already existed".
func (r *TrackRepository) EnsureTrack(ctx context.Context, track *models.Track) (*models.Track, bool, error) {
	existing, err := r.GetByURI(ctx, track.URI)
	if err == nil {
		return existing, true, nil
	}
	if !IsNotFound(err) {
		return nil, false, err
	}

	if err := r.Create(ctx, track); err != nil {
		if database.IsKind(err, database.KindConstraint) {
			existing, gerr := r.GetByURI(ctx, track.URI)
			if gerr != nil {
				return nil, false, fmt.Errorf("failed to load existing track: %w", gerr)
			}
			return existing, true, nil
		}
		return nil, false, err
	}
	return track, false, nil
}
