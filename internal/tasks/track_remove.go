package tasks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/desertthunder/cadence/internal/database"
	"github.com/desertthunder/cadence/internal/metrics"
	"github.com/desertthunder/cadence/internal/repositories"
	"github.com/desertthunder/cadence/internal/statement"
)

// idQueue collects track IDs in insertion order, dropping duplicates and zero IDs.
type idQueue struct {
	mu   sync.Mutex
	ids  []int64
	seen map[int64]struct{}
}

func (q *idQueue) enqueue(ids ...int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.seen == nil {
		q.seen = make(map[int64]struct{})
	}
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := q.seen[id]; ok {
			continue
		}
		q.seen[id] = struct{}{}
		q.ids = append(q.ids, id)
	}
}

func (q *idQueue) snapshot() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]int64, len(q.ids))
	copy(out, q.ids)
	return out
}

// TrackRemove deletes queued tracks from the library with batched statements of at most
// [repositories.MaxBatch] IDs. Their playlist entries are removed as well.
//
// A track leaves the in-memory library only once its batch is deleted from the store, so a
// canceled or failed removal leaves the two in agreement.
type TrackRemove struct {
	*Transaction

	queue   idQueue
	removed atomic.Int64
}

func NewTrackRemove(lc *LibraryContext, ids ...int64) *TrackRemove {
	r := &TrackRemove{}
	r.Transaction = newTransaction(lc, KindTrackRemove, "Removing Tracks", r)
	r.queue.enqueue(ids...)
	return r
}

// Enqueue adds tracks to the batch. IDs queued after the body started are ignored.
func (r *TrackRemove) Enqueue(ids ...int64) { r.queue.enqueue(ids...) }

// Statement returns the DELETE for the whole queue. The body executes it in chunks.
func (r *TrackRemove) Statement() statement.Statement {
	return repositories.DeleteStatement(r.queue.snapshot())
}

// Removed returns the number of Tracks rows deleted.
func (r *TrackRemove) Removed() int64 { return r.removed.Load() }

func (r *TrackRemove) Tables() []string { return []string{"Tracks", "PlaylistEntries"} }

func (r *TrackRemove) Run(ctx context.Context, conn *database.Conn) error {
	ids := r.queue.snapshot()
	if len(ids) == 0 || r.CancelRequested() {
		return nil
	}
	r.SetTotal(len(ids))
	playlists := repositories.NewPlaylistRepository(conn)

	done := 0
	for _, batch := range repositories.Batches(ids, repositories.MaxBatch) {
		if r.CancelRequested() {
			break
		}

		r.SetStatus("Deleting %d tracks", len(batch))
		n, err := conn.Execute(ctx, repositories.DeleteStatement(batch))
		if err != nil {
			return fmt.Errorf("failed to delete tracks: %w", err)
		}
		r.removed.Add(n)

		// Entries of deleted tracks are removed even after a cancel.
		if _, err := playlists.RemoveTrackEntries(context.WithoutCancel(ctx), batch); err != nil {
			r.logger.Warn("failed to remove playlist entries", "error", err)
		}

		r.lc.Library.Remove(batch...)
		metrics.SetTracks(r.lc.Library.Len())
		done += len(batch)
		r.SetCurrent(done)
	}

	r.logger.Info("tracks removed", "queued", len(ids), "deleted", r.Removed())
	return nil
}

// PlaylistTrackRemove deletes queued tracks from one playlist with one batched statement.
type PlaylistTrackRemove struct {
	*Transaction

	playlistID int64
	queue      idQueue
	removed    atomic.Int64
}

func NewPlaylistTrackRemove(lc *LibraryContext, playlistID int64, ids ...int64) *PlaylistTrackRemove {
	r := &PlaylistTrackRemove{playlistID: playlistID}
	r.Transaction = newTransaction(lc, KindPlaylistTrackRemove, "Removing Playlist Tracks", r)
	r.queue.enqueue(ids...)
	return r
}

func (r *PlaylistTrackRemove) Enqueue(ids ...int64) { r.queue.enqueue(ids...) }

func (r *PlaylistTrackRemove) Statement() statement.Statement {
	return repositories.EntriesDeleteStatement(r.playlistID, r.queue.snapshot())
}

func (r *PlaylistTrackRemove) Removed() int64 { return r.removed.Load() }

func (r *PlaylistTrackRemove) Tables() []string { return []string{"PlaylistEntries"} }

func (r *PlaylistTrackRemove) Run(ctx context.Context, conn *database.Conn) error {
	ids := r.queue.snapshot()
	if len(ids) == 0 || r.CancelRequested() {
		return nil
	}
	r.SetTotal(len(ids))

	done := 0
	for _, batch := range repositories.Batches(ids, repositories.MaxBatch) {
		if r.CancelRequested() {
			break
		}
		n, err := conn.Execute(ctx, repositories.EntriesDeleteStatement(r.playlistID, batch))
		if err != nil {
			return fmt.Errorf("failed to delete playlist entries: %w", err)
		}
		r.removed.Add(n)
		done += len(batch)
		r.SetCurrent(done)
	}

	r.logger.Info("playlist tracks removed", "playlist", r.playlistID, "queued", len(ids), "deleted", r.Removed())
	return nil
}
