package ui

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/cadence/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgPolled MsgKind = iota
	MsgCanceled
)

// poll is one reading of the manager.
type poll struct {
	top     *tasks.ProgressUpdate
	items   []list.Item
	running int
	queued  int
	idle    bool
}

// polledMsg is the constructor for [MsgPolled]
func polledMsg(p poll) Msg {
	return Msg{kind: MsgPolled, data: p}
}

// canceledMsg is the constructor for [MsgCanceled]
func canceledMsg(err error, quit bool) Msg {
	return Msg{
		kind: MsgCanceled,
		data: struct {
			err  error
			quit bool
		}{err, quit},
	}
}
