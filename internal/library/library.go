// Package library holds the live, in-memory track index shared between transaction workers
// and the interactive side of the application.
//
// Every method takes a coarse lock; callers receive track pointers that remain owned by the index.
package library

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/cadence/internal/models"
)

// Source lists persisted tracks. [repositories.TrackRepository] satisfies it.
type Source interface {
	List(ctx context.Context, criteria map[string]any) ([]*models.Track, error)
}

// Library is the in-memory track index.
type Library struct {
	mu      sync.RWMutex
	byID    map[int64]*models.Track
	byURI   map[string]*models.Track
	order   []*models.Track
	pending map[*models.Track]struct{}
}

// New creates an empty index.
func New() *Library {
	return &Library{
		byID:    make(map[int64]*models.Track),
		byURI:   make(map[string]*models.Track),
		pending: make(map[*models.Track]struct{}),
	}
}

// Load replaces the index contents with every track from src.
func (l *Library) Load(ctx context.Context, src Source) error {
	tracks, err := src.List(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to load library: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.byID = make(map[int64]*models.Track, len(tracks))
	l.byURI = make(map[string]*models.Track, len(tracks))
	l.order = l.order[:0]
	for _, t := range tracks {
		l.add(t)
	}
	return nil
}

// Add indexes t, replacing any entry with the same ID or URI.
func (l *Library) Add(t *models.Track) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.add(t)
}

func (l *Library) add(t *models.Track) {
	if old, ok := l.byURI[t.URI]; ok {
		l.remove(old)
	}
	if t.ID != 0 {
		if old, ok := l.byID[t.ID]; ok {
			l.remove(old)
		}
		l.byID[t.ID] = t
	}
	l.byURI[t.URI] = t
	l.order = append(l.order, t)
}

// Remove drops the tracks with the given IDs and returns how many were indexed.
func (l *Library) Remove(ids ...int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, id := range ids {
		if t, ok := l.byID[id]; ok {
			l.remove(t)
			n++
		}
	}
	return n
}

func (l *Library) remove(t *models.Track) {
	if cur, ok := l.byID[t.ID]; ok && cur == t {
		delete(l.byID, t.ID)
	}
	if cur, ok := l.byURI[t.URI]; ok && cur == t {
		delete(l.byURI, t.URI)
	}
	delete(l.pending, t)
	for i, o := range l.order {
		if o == t {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Lookup returns the track with the given ID.
func (l *Library) Lookup(id int64) (*models.Track, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.byID[id]
	return t, ok
}

// LookupURI returns the track stored under uri.
func (l *Library) LookupURI(uri string) (*models.Track, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.byURI[uri]
	return t, ok
}

// Snapshot returns the indexed tracks in insertion order.
func (l *Library) Snapshot() []*models.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*models.Track, len(l.order))
	copy(out, l.order)
	return out
}

// Len returns the number of indexed tracks.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// MarkPending records that t failed to persist and should be saved again.
func (l *Library) MarkPending(t *models.Track) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[t] = struct{}{}
}

// PendingCount returns how many tracks await a re-save.
func (l *Library) PendingCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pending)
}

// TakePending returns and clears the tracks awaiting a re-save, in insertion order.
func (l *Library) TakePending() []*models.Track {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) == 0 {
		return nil
	}

	out := make([]*models.Track, 0, len(l.pending))
	for _, t := range l.order {
		if _, ok := l.pending[t]; ok {
			out = append(out, t)
			delete(l.pending, t)
		}
	}
	for t := range l.pending {
		out = append(out, t)
	}
	l.pending = make(map[*models.Track]struct{})
	return out
}
