package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Storage errors
	ErrDatabaseClosed = fmt.Errorf("database closed")

	// Transaction lifecycle errors
	ErrTransactionStarted = fmt.Errorf("transaction already started")
	ErrTransactionDone    = fmt.Errorf("transaction already finished")
	ErrCancelTimeout      = fmt.Errorf("transaction did not observe cancellation")
	ErrTransactionPanic   = fmt.Errorf("transaction body panicked")
	ErrManagerClosed      = fmt.Errorf("transaction manager closed")

	// Library errors
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")
	ErrTrackNotFound    = fmt.Errorf("track not found")
	ErrUnsupportedFile  = fmt.Errorf("unsupported file type")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
