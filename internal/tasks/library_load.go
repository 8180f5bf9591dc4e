package tasks

import (
	"context"

	"github.com/desertthunder/cadence/internal/database"
)

// LibraryLoad replays every track already in the in-memory library through
// [Transaction.OnHaveTrack]. It never touches the database.
type LibraryLoad struct {
	*Transaction
}

func NewLibraryLoad(lc *LibraryContext) *LibraryLoad {
	l := &LibraryLoad{}
	l.Transaction = newTransaction(lc, KindLibraryLoad, "Loading Library", l)
	l.setPresentation(false, true)
	return l
}

func (l *LibraryLoad) Tables() []string { return nil }

func (l *LibraryLoad) Run(_ context.Context, _ *database.Conn) error {
	tracks := l.lc.Library.Snapshot()
	l.SetTotal(len(tracks))

	for _, track := range tracks {
		if l.CancelRequested() {
			return nil
		}
		l.haveTrack(track)
		l.Step()
	}
	return nil
}
