package tasks

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// ProgressUpdate is a point-in-time snapshot of a transaction's progress.
//
// Pollers read it from [Transaction.Progress]; there is no push channel.
type ProgressUpdate struct {
	ID         string
	Kind       Kind
	Name       string
	State      State
	Current    int
	Total      int // 0 means indeterminate
	Status     string
	Average    time.Duration // Rolling per-item cost
	Elapsed    time.Duration
	ShowStatus bool
	ShowCount  bool
}

// Progress returns a consistent snapshot of t.
func (t *Transaction) Progress() ProgressUpdate {
	elapsed := t.Elapsed()

	t.mu.Lock()
	defer t.mu.Unlock()
	return ProgressUpdate{
		ID:         t.id,
		Kind:       t.kind,
		Name:       t.name,
		State:      t.state,
		Current:    t.current,
		Total:      t.total,
		Status:     t.status,
		Average:    t.average,
		Elapsed:    elapsed,
		ShowStatus: t.showStatus,
		ShowCount:  t.showCount,
	}
}

// Determinate reports whether the total is known.
func (p ProgressUpdate) Determinate() bool { return p.Total > 0 }

// Fraction returns completion in [0, 1], or 0 when indeterminate.
func (p ProgressUpdate) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Current) / float64(p.Total)
	if f > 1 {
		return 1
	}
	return f
}

// ETA estimates the remaining time from the rolling average; 0 when unknown.
func (p ProgressUpdate) ETA() time.Duration {
	if p.Total <= 0 || p.Average <= 0 || p.Current >= p.Total {
		return 0
	}
	return time.Duration(p.Total-p.Current) * p.Average
}

// ETAString renders the estimate as relative time, e.g. "3 minutes remaining".
func (p ProgressUpdate) ETAString() string {
	eta := p.ETA()
	if eta <= 0 {
		return ""
	}
	now := time.Now()
	return humanize.RelTime(now, now.Add(eta), "remaining", "")
}

// Counter renders "current / total" with digit grouping, or just the current count when indeterminate.
func (p ProgressUpdate) Counter() string {
	if p.Total <= 0 {
		return humanize.Comma(int64(p.Current))
	}
	return fmt.Sprintf("%s / %s", humanize.Comma(int64(p.Current)), humanize.Comma(int64(p.Total)))
}

// String renders a one-line summary for logs and plain terminals.
func (p ProgressUpdate) String() string {
	s := p.Name
	if p.ShowCount {
		s += " [" + p.Counter() + "]"
	}
	if p.ShowStatus && p.Status != "" {
		s += " " + p.Status
	}
	if eta := p.ETAString(); eta != "" {
		s += " (" + eta + ")"
	}
	return s
}
