package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/cadence/internal/tasks"
	"github.com/schollz/progressbar/v3"
)

// pollInterval is how often the progress poller samples the manager.
const pollInterval = 100 * time.Millisecond

// watch mirrors the manager's top execution on a terminal progress bar until t finishes.
//
// When ctx ends first every transaction is canceled and the context error is returned.
func (r *Runner) watch(ctx context.Context, m *tasks.Manager, t *tasks.Transaction) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var p poller
	defer p.close()

	for {
		select {
		case <-t.Finished():
			p.show(r, t.Progress())
			p.finish()
			return nil
		case <-ctx.Done():
			p.close()
			r.logger.Warn("interrupted, canceling transactions")
			if err := m.CancelAll(); err != nil {
				return errors.Join(ctx.Err(), err)
			}
			return ctx.Err()
		case <-ticker.C:
			if top := m.TopExecution(); top != nil {
				p.show(r, top.Progress())
			}
		}
	}
}

// poller keeps one bar per top execution; the bar is replaced when a different transaction takes the top.
type poller struct {
	bar   *progressbar.ProgressBar
	id    string
	total int
}

func (p *poller) show(r *Runner, u tasks.ProgressUpdate) {
	if p.bar == nil || p.id != u.ID {
		p.close()
		p.bar = newBar(r, u)
		p.id = u.ID
		p.total = u.Total
	}

	if u.Total != p.total {
		p.total = u.Total
		p.bar.ChangeMax64(barMax(u.Total))
	}

	desc := u.Name
	if u.ShowStatus && u.Status != "" {
		desc = fmt.Sprintf("%s: %s", u.Name, u.Status)
	}
	p.bar.Describe(desc)
	p.bar.Set64(int64(u.Current))
}

func (p *poller) finish() {
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}

func (p *poller) close() {
	if p.bar != nil {
		p.bar.Exit()
		p.bar = nil
	}
}

func newBar(r *Runner, u tasks.ProgressUpdate) *progressbar.ProgressBar {
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(r.progress),
		progressbar.OptionSetDescription(u.Name),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(pollInterval),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionShowElapsedTimeOnFinish(),
	}
	if u.ShowCount {
		opts = append(opts, progressbar.OptionShowCount())
	}
	return progressbar.NewOptions64(barMax(u.Total), opts...)
}

// barMax maps an unknown total onto the library's indeterminate spinner.
func barMax(total int) int64 {
	if total <= 0 {
		return -1
	}
	return int64(total)
}
