package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/tasks"
)

// DefaultInterval is how often the monitor polls the manager.
const DefaultInterval = 100 * time.Millisecond

// ViewState represents the current view in the TUI.
type ViewState int

const (
	MonitorView ViewState = iota
	ResultView
)

// Model represents the TUI application state.
//
// Transactions should be registered before the program starts: the first poll that finds the
// manager idle switches to [ResultView].
type Model struct {
	ctx      context.Context
	view     ViewState
	manager  *tasks.Manager
	interval time.Duration
	width    int
	height   int
	top      *tasks.ProgressUpdate
	running  int
	queued   int
	jobs     list.Model
	bar      progress.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap

	mu        sync.Mutex
	followed  []*tasks.Transaction
	tracks    atomic.Int64
	last      atomic.Pointer[models.Track]
	err       error
	cancelErr error
	canceling bool
}

// NewModel creates a monitor polling manager.
func NewModel(ctx context.Context, manager *tasks.Manager) *Model {
	jobs := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	jobs.Title = "Transactions"
	jobs.SetShowStatusBar(false)
	jobs.SetFilteringEnabled(false)
	jobs.SetShowHelp(false)
	jobs.KeyMap.Quit.SetEnabled(false)

	return &Model{
		ctx:      ctx,
		view:     MonitorView,
		manager:  manager,
		interval: DefaultInterval,
		jobs:     jobs,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner:  spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(styles.ok)),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// SetInterval changes the polling interval.
func (m *Model) SetInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

// Follow counts the tracks announced by each t and reports its error in the result view.
func (m *Model) Follow(ts ...*tasks.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range ts {
		m.followed = append(m.followed, t)
		t.OnHaveTrack(func(_ *tasks.Transaction, track *models.Track) {
			m.tracks.Add(1)
			m.last.Store(track)
		})
	}
}

// Tracks returns how many tracks the followed transactions announced.
func (m *Model) Tracks() int { return int(m.tracks.Load()) }

// Err returns the joined errors of the followed transactions once the manager went idle.
func (m *Model) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Init takes the first reading and starts the spinner.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(func() tea.Msg { return m.poll() }, m.spinner.Tick, m.watchContext())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(10, min(msg.Width-4, 60))
		m.jobs.SetSize(msg.Width-4, max(msg.Height-12, 4))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.view {
		case MonitorView:
			return m.handleMonitorKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		switch msg.kind {
		case MsgPolled:
			return m.handlePoll(msg.data.(poll))
		case MsgCanceled:
			data := msg.data.(struct {
				err  error
				quit bool
			})
			m.canceling = false
			m.cancelErr = data.err
			if data.quit {
				return m, tea.Quit
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.jobs, cmd = m.jobs.Update(msg)
	return m, cmd
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case MonitorView:
		return m.renderMonitor()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handlePoll(p poll) (tea.Model, tea.Cmd) {
	m.top = p.top
	m.running = p.running
	m.queued = p.queued
	cmd := m.jobs.SetItems(p.items)

	if p.idle && m.view == MonitorView {
		m.view = ResultView
		m.mu.Lock()
		m.err = followedErrors(m.followed)
		m.mu.Unlock()
		return m, cmd
	}
	return m, tea.Batch(cmd, m.tick())
}

func (m *Model) handleMonitorKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.canceling = true
		return m, m.cancelAll(true)
	case key.Matches(msg, m.keys.cancelAll):
		m.canceling = true
		return m, m.cancelAll(false)
	case key.Matches(msg, m.keys.cancel):
		if item, ok := m.jobs.SelectedItem().(transactionItem); ok && item.tr != nil {
			m.canceling = true
			tr := item.tr
			return m, func() tea.Msg { return canceledMsg(tr.Cancel(), false) }
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.jobs, cmd = m.jobs.Update(msg)
	return m, cmd
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.quit) {
		return m, tea.Quit
	}
	return m, nil
}

// poll reads the manager without holding any model state.
func (m *Model) poll() Msg {
	var p poll
	if top := m.manager.TopExecution(); top != nil {
		snap := top.Progress()
		p.top = &snap
	}

	running := m.manager.Running()
	queued := m.manager.Queued()
	p.running, p.queued = len(running), len(queued)
	for _, t := range append(running, queued...) {
		p.items = append(p.items, transactionItem{tr: t, progress: t.Progress()})
	}
	p.idle = len(p.items) == 0
	return polledMsg(p)
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return m.poll() })
}

func (m *Model) cancelAll(quit bool) tea.Cmd {
	return func() tea.Msg { return canceledMsg(m.manager.CancelAll(), quit) }
}

// watchContext cancels everything and quits once ctx ends.
func (m *Model) watchContext() tea.Cmd {
	if m.ctx == nil || m.ctx.Done() == nil {
		return nil
	}
	return func() tea.Msg {
		<-m.ctx.Done()
		return canceledMsg(m.manager.CancelAll(), true)
	}
}

func followedErrors(ts []*tasks.Transaction) error {
	var errs []error
	for _, t := range ts {
		if err := t.LastError(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Model) renderMonitor() string {
	var b strings.Builder

	b.WriteString(styles.title.Render(fmt.Sprintf("Library Transactions • %d running, %d queued", m.running, m.queued)))
	b.WriteString("\n")
	b.WriteString(m.renderTop())
	b.WriteString("\n\n")
	b.WriteString(m.jobs.View())
	b.WriteString("\n\n")

	if n := m.Tracks(); n > 0 {
		line := fmt.Sprintf("Tracks: %d", n)
		if last := m.last.Load(); last != nil {
			line += fmt.Sprintf(" • last: %s - %s", last.DisplayArtist(), last.DisplayTitle())
		}
		b.WriteString(styles.dim.Render(line))
		b.WriteString("\n")
	}
	if m.canceling {
		b.WriteString(styles.warn.Render("Canceling..."))
		b.WriteString("\n")
	} else if m.cancelErr != nil {
		b.WriteString(styles.warn.Render(m.cancelErr.Error()))
		b.WriteString("\n")
	}

	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m *Model) renderTop() string {
	if m.top == nil {
		return styles.dim.Render("Waiting for transactions...")
	}

	p := *m.top
	lines := []string{}
	if p.Determinate() {
		lines = append(lines, p.Name)
		bar := m.bar.ViewAs(p.Fraction())
		if p.ShowCount {
			bar += "  " + p.Counter()
		}
		lines = append(lines, bar)
	} else {
		head := m.spinner.View() + " " + p.Name
		if p.ShowCount {
			head += "  " + p.Counter()
		}
		lines = append(lines, head)
	}
	if p.ShowStatus && p.Status != "" {
		lines = append(lines, styles.help.Render(p.Status))
	}
	if eta := p.ETAString(); eta != "" {
		lines = append(lines, styles.dim.Render(eta))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderResult() string {
	m.mu.Lock()
	err := m.err
	m.mu.Unlock()

	var title string
	if err != nil {
		title = styles.err.Render("Finished with errors")
	} else {
		title = styles.ok.Render("✓ All transactions finished")
	}

	info := fmt.Sprintf("\nTracks: %d", m.Tracks())
	if err != nil {
		info += "\n\n" + styles.err.Render(err.Error())
	}
	if m.cancelErr != nil {
		info += "\n\n" + styles.warn.Render(m.cancelErr.Error())
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
}
