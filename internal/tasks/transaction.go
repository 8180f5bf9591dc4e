package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cadence/internal/database"
	"github.com/desertthunder/cadence/internal/metrics"
	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/shared"
)

// Kind names a concrete transaction type.
type Kind string

const (
	KindFileLoad            Kind = "file_load"
	KindLibraryLoad         Kind = "library_load"
	KindSqlLoad             Kind = "sql_load"
	KindPlaylistSave        Kind = "playlist_save"
	KindTrackRemove         Kind = "track_remove"
	KindPlaylistTrackRemove Kind = "playlist_track_remove"
	KindTrackInfoSave       Kind = "track_info_save"
)

// State is a transaction lifecycle state.
type State int

const (
	StateCreated State = iota
	StateQueued
	StateRunning
	StateCanceling
	StateCanceled
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateCanceling:
		return "canceling"
	case StateCanceled:
		return "canceled"
	case StateFinished:
		return "finished"
	default:
		return ""
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool { return s == StateCanceled || s == StateFinished }

// Job is implemented by concrete transactions, which embed a *[Transaction].
type Job interface {
	Base() *Transaction
	// Tables names the logical resources the job mutates; no tables means it never waits.
	Tables() []string
	// Run is the body, invoked once on the transaction's own worker with its own connection.
	Run(ctx context.Context, conn *database.Conn) error
}

// CancelActioner is implemented by jobs that must interrupt a blocking call when canceled.
type CancelActioner interface {
	CancelAction()
}

// Listener receives lifecycle events on the goroutine that raised them.
type Listener func(t *Transaction)

// TrackListener receives tracks discovered by a loading transaction.
type TrackListener func(t *Transaction, track *models.Track)

// Transaction is the lifecycle, progress and cancellation state shared by every concrete job.
type Transaction struct {
	id     string
	kind   Kind
	job    Job
	lc     *LibraryContext
	logger *log.Logger
	grace  time.Duration

	mu         sync.Mutex
	name       string
	total      int
	current    int
	status     string
	average    time.Duration
	showStatus bool
	showCount  bool
	state      State
	lastErr    error
	started    time.Time
	ended      time.Time

	canceled atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc

	finishOnce sync.Once
	finished   chan struct{}
	exitOnce   sync.Once
	done       chan struct{}
	onExit     func()

	lisMu      sync.Mutex
	onFinished []Listener
	onCanceled []Listener
	onTrack    []TrackListener
}

func newTransaction(lc *LibraryContext, kind Kind, name string, job Job) *Transaction {
	ctx, cancel := context.WithCancel(context.Background())
	id := shared.GenerateID()

	t := &Transaction{
		id:         id,
		kind:       kind,
		job:        job,
		lc:         lc,
		name:       name,
		grace:      time.Second,
		showStatus: true,
		showCount:  true,
		ctx:        ctx,
		cancel:     cancel,
		finished:   make(chan struct{}),
		done:       make(chan struct{}),
	}

	logger := shared.NewLogger(nil)
	if lc != nil {
		if lc.Logger != nil {
			logger = lc.Logger
		}
		if lc.Options.CancelGrace > 0 {
			t.grace = lc.Options.CancelGrace
		}
	}
	t.logger = shared.WithLogger(logger, "transaction", id, "kind", string(kind))
	return t
}

// Base returns t; it lets concrete jobs satisfy [Job] through embedding.
func (t *Transaction) Base() *Transaction { return t }

func (t *Transaction) ID() string          { return t.id }
func (t *Transaction) Kind() Kind          { return t.kind }
func (t *Transaction) Logger() *log.Logger { return t.logger }

// Register submits the transaction to the manager of its library context.
func (t *Transaction) Register() error {
	if t.lc == nil || t.lc.Manager == nil {
		return fmt.Errorf("%w: transaction has no manager", shared.ErrMissingArgument)
	}
	return t.lc.Manager.Register(t.job)
}

// ThreadedRun starts the body on a new goroutine. It returns false when the transaction was
// already started or has been canceled.
func (t *Transaction) ThreadedRun() bool {
	t.mu.Lock()
	if t.state != StateCreated && t.state != StateQueued {
		t.mu.Unlock()
		return false
	}
	t.state = StateRunning
	t.started = time.Now()
	t.mu.Unlock()

	go t.safeRun()
	return true
}

// safeRun runs the body under recover and always raises Finished.
func (t *Transaction) safeRun() {
	defer t.exit()
	defer t.raiseFinished()

	err := t.execute()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.canceled.Load() {
		t.state = StateCanceled
		if t.lastErr == nil && err != nil && !errors.Is(err, context.Canceled) {
			t.lastErr = err
		}
		return
	}
	t.state = StateFinished
	t.lastErr = err
	if err != nil {
		t.logger.Error("transaction failed", "error", err)
	}
}

func (t *Transaction) execute() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", shared.ErrTransactionPanic, r)
			t.logger.Error("transaction panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	var conn *database.Conn
	if t.lc != nil && t.lc.DB != nil {
		conn, err = t.lc.DB.Worker(t.ctx, t.id)
		if err != nil {
			return fmt.Errorf("failed to acquire connection: %w", err)
		}
		defer t.lc.DB.Release(t.id)
	}
	return t.job.Run(t.ctx, conn)
}

// Cancel requests cooperative cancellation and waits up to the grace period for the worker to exit.
//
// Canceled is raised first. A transaction that never started is finished immediately. A worker that
// does not exit in time is abandoned: LastError becomes [shared.ErrCancelTimeout], Finished is raised
// and the error is returned. Its tables stay held until the goroutine really returns.
func (t *Transaction) Cancel() error {
	t.mu.Lock()
	prev := t.state
	if prev.Terminal() || prev == StateCanceling {
		t.mu.Unlock()
		return nil
	}
	t.state = StateCanceling
	t.mu.Unlock()

	t.raise(&t.onCanceled)
	t.canceled.Store(true)
	t.cancel()
	if ca, ok := t.job.(CancelActioner); ok {
		ca.CancelAction()
	}

	if prev != StateRunning {
		t.setState(StateCanceled)
		t.raiseFinished()
		t.exit()
		t.logger.Debug("canceled before start")
		return nil
	}

	timer := time.NewTimer(t.grace)
	defer timer.Stop()

	select {
	case <-t.done:
		t.logger.Info("transaction canceled peacefully")
		metrics.IncCanceled(string(t.kind), false)
		return nil
	case <-timer.C:
		t.mu.Lock()
		t.state = StateCanceled
		t.lastErr = shared.ErrCancelTimeout
		t.mu.Unlock()

		t.logger.Warn("transaction did not observe cancellation", "grace", t.grace)
		metrics.IncCanceled(string(t.kind), true)
		t.raiseFinished()
		return fmt.Errorf("%w: %s", shared.ErrCancelTimeout, t.Name())
	}
}

// CancelRequested reports whether [Transaction.Cancel] has been called.
func (t *Transaction) CancelRequested() bool { return t.canceled.Load() }

// Finished is closed once every Finished listener has returned.
func (t *Transaction) Finished() <-chan struct{} { return t.finished }

// Done is closed once the worker goroutine has exited, or at cancellation of a transaction that never ran.
func (t *Transaction) Done() <-chan struct{} { return t.done }

// Wait blocks until Finished is raised or ctx ends.
func (t *Transaction) Wait(ctx context.Context) error {
	select {
	case <-t.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnFinished subscribes fn to the Finished event.
func (t *Transaction) OnFinished(fn Listener) { t.subscribe(&t.onFinished, fn) }

// OnCanceled subscribes fn to the Canceled event.
func (t *Transaction) OnCanceled(fn Listener) { t.subscribe(&t.onCanceled, fn) }

// OnHaveTrack subscribes fn to per-track discovery.
func (t *Transaction) OnHaveTrack(fn TrackListener) {
	t.lisMu.Lock()
	defer t.lisMu.Unlock()
	t.onTrack = append(t.onTrack, fn)
}

func (t *Transaction) subscribe(list *[]Listener, fn Listener) {
	t.lisMu.Lock()
	defer t.lisMu.Unlock()
	*list = append(*list, fn)
}

func (t *Transaction) raise(list *[]Listener) {
	t.lisMu.Lock()
	fns := make([]Listener, len(*list))
	copy(fns, *list)
	t.lisMu.Unlock()

	for _, fn := range fns {
		fn(t)
	}
}

func (t *Transaction) raiseFinished() {
	t.finishOnce.Do(func() {
		t.mu.Lock()
		t.ended = time.Now()
		t.mu.Unlock()

		t.raise(&t.onFinished)
		close(t.finished)
	})
}

func (t *Transaction) exit() {
	t.exitOnce.Do(func() {
		close(t.done)
		t.mu.Lock()
		hook := t.onExit
		t.mu.Unlock()
		if hook != nil {
			hook()
		}
	})
}

func (t *Transaction) haveTrack(track *models.Track) {
	t.lisMu.Lock()
	fns := make([]TrackListener, len(t.onTrack))
	copy(fns, t.onTrack)
	t.lisMu.Unlock()

	for _, fn := range fns {
		fn(t, track)
	}
}

func (t *Transaction) setState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *Transaction) setOnExit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExit = fn
}

// State returns the current lifecycle state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// LastError returns the fault captured from the body, or [shared.ErrCancelTimeout] for an abandoned worker.
func (t *Transaction) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// Worker returns the identity of the executing worker, or "" when not running.
func (t *Transaction) Worker() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateRunning && t.state != StateCanceling {
		return ""
	}
	return t.id
}

// Elapsed returns how long the body has been running, or ran.
func (t *Transaction) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.started.IsZero():
		return 0
	case t.ended.IsZero():
		return time.Since(t.started)
	default:
		return t.ended.Sub(t.started)
	}
}

func (t *Transaction) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

func (t *Transaction) SetName(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.name = name
}

// Total returns the progress denominator; 0 means indeterminate.
func (t *Transaction) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

func (t *Transaction) SetTotal(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n < 0 {
		n = 0
	}
	t.total = n
	if n > 0 && t.current > n {
		t.current = n
	}
}

func (t *Transaction) Current() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// SetCurrent sets the progress numerator, clamped to the known total. It never moves backwards.
func (t *Transaction) SetCurrent(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total > 0 && n > t.total {
		n = t.total
	}
	if n > t.current {
		t.current = n
	}
}

// Step advances the progress numerator by one, clamped to the known total.
func (t *Transaction) Step() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total > 0 && t.current >= t.total {
		return
	}
	t.current++
}

func (t *Transaction) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Transaction) SetStatus(format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = msg
}

func (t *Transaction) ShowStatus() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.showStatus
}

func (t *Transaction) ShowCount() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.showCount
}

func (t *Transaction) setPresentation(showStatus, showCount bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.showStatus = showStatus
	t.showCount = showCount
}

// AverageDuration returns the rolling per-item cost.
func (t *Transaction) AverageDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.average
}

// UpdateAverageDuration folds the time since start into the rolling per-item average.
func (t *Transaction) UpdateAverageDuration(start time.Time) {
	delta := time.Since(start)
	if delta <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.average == 0 {
		t.average = delta
		return
	}
	t.average = (t.average + delta) / 2
}
