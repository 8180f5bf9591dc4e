// Package tasks runs library-mutating work in the background with progress, cancellation and
// per-table serialization.
//
// # Transactions
//
// A [Transaction] is one unit of background work. Concrete jobs embed it and implement [Job]:
//
//  1. [FileLoad] : recursive import of audio files
//     - Skips dot-directories, optionally counts files first
//     - Reads tags with dhowden/tag, falls back to the file name
//     - Optionally copies files into the library root
//
//  2. [LibraryLoad] : replays the in-memory library without touching the database
//
//  3. [SqlLoad] : streams the rows of an arbitrary SELECT as tracks
//
//  4. [PlaylistSave] : replaces the entries of a playlist, creating it when new
//
//  5. [TrackRemove] and [PlaylistTrackRemove] : batched deletes with one statement per batch
//
//  6. [TrackInfoSave] : persists loaded tracks, marking failures for a later [Resaver] pass
//
// Each transaction runs on its own goroutine with its own [database.Conn]. The body runs under
// recover; a fault is kept in [Transaction.LastError] and Finished is still raised.
//
// # Scheduling
//
// [Manager.Register] queues a job behind every transaction already registered for one of its
// tables and starts it once it heads all of those queues. Jobs without tables start immediately.
//
// # Cancellation
//
// Cancellation is cooperative. Bodies poll [Transaction.CancelRequested] or watch their context.
// A worker that does not exit within the grace period is abandoned rather than killed, and
// [Transaction.Cancel] reports [shared.ErrCancelTimeout].
//
// # Progress Reporting
//
// There is no push channel. Pollers read [Manager.TopExecution] and [Transaction.Progress] on a
// timer and render the [ProgressUpdate] snapshot.
package tasks
