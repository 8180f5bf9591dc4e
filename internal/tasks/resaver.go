package tasks

import (
	"sync"

	"github.com/desertthunder/cadence/internal/database"
)

// Resaver retries pending track saves after any successful write cycle.
//
// At most one resave transaction is in flight. Write cycles issued by a resave itself do not
// trigger another one.
type Resaver struct {
	lc          *LibraryContext
	unsubscribe func()

	mu      sync.Mutex
	current *TrackInfoSave
}

// NewResaver subscribes to the write cycles of lc.DB.
func NewResaver(lc *LibraryContext) *Resaver {
	r := &Resaver{lc: lc}
	r.unsubscribe = lc.DB.Subscribe(r.written)
	return r
}

// Stop removes the subscription.
func (r *Resaver) Stop() { r.unsubscribe() }

func (r *Resaver) written(wc database.WriteCycle) {
	r.mu.Lock()
	if r.current != nil || r.lc.Library.PendingCount() == 0 {
		r.mu.Unlock()
		return
	}
	tracks := r.lc.Library.TakePending()
	if len(tracks) == 0 {
		r.mu.Unlock()
		return
	}
	save := NewTrackInfoSave(r.lc, tracks...)
	r.current = save
	r.mu.Unlock()

	save.OnFinished(func(*Transaction) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.current == save {
			r.current = nil
		}
	})

	r.lc.Logger.Debug("resaving pending tracks", "tracks", len(tracks), "after", wc.Worker)
	if err := save.Register(); err != nil {
		r.lc.Logger.Warn("failed to register resave", "error", err)
		for _, t := range tracks {
			r.lc.Library.MarkPending(t)
		}
		r.mu.Lock()
		r.current = nil
		r.mu.Unlock()
	}
}
