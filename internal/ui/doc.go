// Package ui implements a terminal progress monitor for the transaction manager using bubbletea's Elm architecture.
//
// The monitor has two views:
//  1. [MonitorView] : The top execution's progress bar (or a spinner when its total is unknown) above a list of
//     running and queued transactions
//  2. [ResultView] : Shown once the manager is idle, summarizing announced tracks and the last failure
//
// The [Model] never receives pushed progress. It polls [tasks.Manager.TopExecution] and each transaction's
// [tasks.Transaction.Progress] snapshot on a fixed interval, delivering the result as a Msg.
//
// Keyboard navigation uses vim-style bindings (j/k, c, x, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
