package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/cadence/internal/tasks"
)

var _ list.Item = transactionItem{}

// transactionItem pairs a transaction with the snapshot taken when it was polled to implement [list.Item].
type transactionItem struct {
	tr       *tasks.Transaction
	progress tasks.ProgressUpdate
}

func (i transactionItem) FilterValue() string { return i.progress.Name }
func (i transactionItem) Title() string {
	return fmt.Sprintf("%s %s", styles.state(i.progress.State).Render("["+i.progress.State.String()+"]"), i.progress.Name)
}
func (i transactionItem) Description() string {
	desc := string(i.progress.Kind)
	if i.progress.ShowCount {
		desc = fmt.Sprintf("%s • %s", desc, i.progress.Counter())
	}
	if i.progress.ShowStatus && i.progress.Status != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.progress.Status)
	}
	return desc
}
