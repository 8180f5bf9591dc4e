package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cadence/internal/metrics"
	"github.com/desertthunder/cadence/internal/shared"
)

// Manager admits transactions and serializes them per table.
//
// Every table has a FIFO queue whose head is the transaction allowed to run against it. A
// transaction starts once it heads the queue of each of its tables and none of those tables is
// held. Because queues are filled in registration order, the oldest waiting transaction can
// always start once the running ones exit, so multi-table transactions cannot deadlock.
type Manager struct {
	logger *log.Logger

	mu      sync.Mutex
	queues  map[string][]*Transaction
	held    map[string]*Transaction
	tables  map[*Transaction][]string
	pending []*Transaction
	active  []*Transaction
	closed  bool
	changed chan struct{}
}

// NewManager creates an empty manager.
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Manager{
		logger:  shared.WithLogger(logger, "component", "manager"),
		queues:  make(map[string][]*Transaction),
		held:    make(map[string]*Transaction),
		tables:  make(map[*Transaction][]string),
		changed: make(chan struct{}),
	}
}

// Register admits job, queuing it behind any transaction already holding one of its tables.
func (m *Manager) Register(job Job) error {
	t := job.Base()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return shared.ErrManagerClosed
	}
	if _, ok := m.tables[t]; ok {
		return fmt.Errorf("%w: %s already registered", shared.ErrTransactionStarted, t.id)
	}
	if s := t.State(); s != StateCreated {
		if s.Terminal() {
			return fmt.Errorf("%w: %s", shared.ErrTransactionDone, t.id)
		}
		return fmt.Errorf("%w: %s", shared.ErrTransactionStarted, t.id)
	}

	tables := uniqueTables(job.Tables())
	m.tables[t] = tables
	for _, table := range tables {
		m.queues[table] = append(m.queues[table], t)
	}
	m.pending = append(m.pending, t)

	t.setState(StateQueued)
	t.setOnExit(func() { m.exited(t) })
	t.logger.Debug("registered", "tables", tables)

	m.schedule()
	m.notify()
	return nil
}

// schedule starts every pending transaction that can run. Callers hold m.mu.
func (m *Manager) schedule() {
	var waiting []*Transaction
	for _, t := range m.pending {
		if !m.runnable(t) {
			waiting = append(waiting, t)
			continue
		}

		for _, table := range m.tables[t] {
			m.held[table] = t
		}
		if t.ThreadedRun() {
			m.active = append(m.active, t)
			metrics.IncStarted(string(t.kind))
			t.logger.Debug("started")
		}
	}
	m.pending = waiting
	m.record()
}

func (m *Manager) runnable(t *Transaction) bool {
	for _, table := range m.tables[t] {
		if m.held[table] != nil {
			return false
		}
		if q := m.queues[table]; len(q) == 0 || q[0] != t {
			return false
		}
	}
	return true
}

// exited releases the tables of t once its worker is gone and starts whoever was waiting.
func (m *Manager) exited(t *Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tables, ok := m.tables[t]
	if !ok {
		return
	}
	delete(m.tables, t)

	for _, table := range tables {
		if m.held[table] == t {
			delete(m.held, table)
		}
		m.queues[table] = without(m.queues[table], t)
		if len(m.queues[table]) == 0 {
			delete(m.queues, table)
		}
	}
	m.pending = without(m.pending, t)

	if idx := index(m.active, t); idx >= 0 {
		m.active = append(m.active[:idx], m.active[idx+1:]...)

		kind := string(t.kind)
		metrics.ObserveDuration(kind, t.Elapsed())
		switch err := t.LastError(); {
		case t.CancelRequested():
		case err != nil:
			metrics.IncFailed(kind)
		default:
			metrics.IncCompleted(kind)
		}
	}

	m.schedule()
	m.notify()
}

// record publishes queue gauges. Callers hold m.mu.
func (m *Manager) record() {
	metrics.SetQueued(len(m.pending))
	metrics.SetTables(len(m.queues))
}

// notify wakes every [Manager.Wait] caller. Callers hold m.mu.
func (m *Manager) notify() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// TopExecution returns the most recently started transaction that has not finished.
func (m *Manager) TopExecution() *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.active) - 1; i >= 0; i-- {
		t := m.active[i]
		select {
		case <-t.finished:
			continue
		default:
			return t
		}
	}
	return nil
}

// TableCount returns how many distinct tables have a running or queued transaction.
func (m *Manager) TableCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues)
}

// Running returns the started transactions whose workers have not exited, oldest first.
func (m *Manager) Running() []*Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Transaction, len(m.active))
	copy(out, m.active)
	return out
}

// Queued returns the registered transactions still waiting for their tables.
func (m *Manager) Queued() []*Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Transaction, len(m.pending))
	copy(out, m.pending)
	return out
}

// Cancel cancels every queued or running transaction of the given kind.
func (m *Manager) Cancel(kind Kind) error {
	return m.cancelWhere(func(t *Transaction) bool { return t.kind == kind })
}

// CancelAll cancels every queued and running transaction.
func (m *Manager) CancelAll() error {
	return m.cancelWhere(func(*Transaction) bool { return true })
}

// cancelWhere cancels queued matches first so none of them is started by a running one exiting,
// then cancels running matches concurrently. Timeouts are joined into the returned error.
func (m *Manager) cancelWhere(match func(*Transaction) bool) error {
	m.mu.Lock()
	var queued, running []*Transaction
	for _, t := range m.pending {
		if match(t) {
			queued = append(queued, t)
		}
	}
	for _, t := range m.active {
		if match(t) {
			running = append(running, t)
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, t := range queued {
		if err := t.Cancel(); err != nil {
			errs = append(errs, err)
		}
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, t := range running {
		wg.Add(1)
		go func(t *Transaction) {
			defer wg.Done()
			if err := t.Cancel(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(t)
	}
	wg.Wait()

	if len(queued)+len(running) > 0 {
		m.logger.Info("canceled transactions", "queued", len(queued), "running", len(running), "timeouts", len(errs))
	}
	return errors.Join(errs...)
}

// Wait blocks until no transaction is registered or ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	for {
		m.mu.Lock()
		if len(m.tables) == 0 {
			m.mu.Unlock()
			return nil
		}
		ch := m.changed
		m.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close rejects further registrations, cancels everything in flight and waits for the workers.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	cancelErr := m.CancelAll()
	if err := m.Wait(ctx); err != nil {
		return errors.Join(cancelErr, err)
	}
	return cancelErr
}

func uniqueTables(tables []string) []string {
	seen := make(map[string]struct{}, len(tables))
	out := make([]string, 0, len(tables))
	for _, table := range tables {
		if table == "" {
			continue
		}
		if _, ok := seen[table]; ok {
			continue
		}
		seen[table] = struct{}{}
		out = append(out, table)
	}
	return out
}

func index(list []*Transaction, t *Transaction) int {
	for i, o := range list {
		if o == t {
			return i
		}
	}
	return -1
}

func without(list []*Transaction, t *Transaction) []*Transaction {
	if i := index(list, t); i >= 0 {
		return append(list[:i], list[i+1:]...)
	}
	return list
}
