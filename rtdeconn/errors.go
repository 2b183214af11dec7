package rtdeconn

import "errors"

var (
	// ErrSessionConfigNil indicates that a nil SessionConfig was provided.
	ErrSessionConfigNil = errors.New("rtdeconn: session config is nil")

	// ErrStoreNil indicates that a nil control-state store was provided.
	ErrStoreNil = errors.New("rtdeconn: state store is nil")

	// ErrAlreadyOpened indicates that Open was called more than once.
	ErrAlreadyOpened = errors.New("rtdeconn: session already opened")

	// ErrSessionClosed indicates that the session has been closed.
	ErrSessionClosed = errors.New("rtdeconn: session closed")

	// ErrNotConnected indicates that no RTDE connection is established.
	ErrNotConnected = errors.New("rtdeconn: not connected")

	// ErrStopRequested indicates that the shared stop flag is raised.
	ErrStopRequested = errors.New("rtdeconn: stop requested")
)

var (
	// ErrSetupNotAllowed indicates a recipe setup outside ConnectedState and PausedState.
	ErrSetupNotAllowed = errors.New("rtdeconn: recipe setup requires connected or paused state")

	// ErrNoInputRecipe indicates an input write before an input recipe was negotiated.
	ErrNoInputRecipe = errors.New("rtdeconn: no input recipe negotiated")

	// ErrReplyTimeout indicates that the controller did not answer a request in time.
	ErrReplyTimeout = errors.New("rtdeconn: reply timeout")

	// ErrStartRefused indicates a negative START acknowledgement.
	ErrStartRefused = errors.New("rtdeconn: start refused by controller")

	// ErrPauseRefused indicates a negative PAUSE acknowledgement.
	ErrPauseRefused = errors.New("rtdeconn: pause refused by controller")
)

var (
	// ErrReconnectTimeout indicates that the session could not be (re-)established within the
	// reconnect window. It is terminal.
	ErrReconnectTimeout = errors.New("rtdeconn: reconnect timeout")
)
