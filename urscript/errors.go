package urscript

import "errors"

var (
	// ErrClientConfigNil indicates that a nil ClientConfig was provided.
	ErrClientConfigNil = errors.New("urscript: client config is nil")

	// ErrStoreNil indicates that a nil control-state store was provided.
	ErrStoreNil = errors.New("urscript: state store is nil")

	// ErrClientClosed indicates that the client has been closed.
	ErrClientClosed = errors.New("urscript: client closed")

	// ErrStopRequested indicates that the shared stop flag is raised.
	ErrStopRequested = errors.New("urscript: stop requested")
)

var (
	// ErrMalformedProgram indicates a program whose definition header or closing end
	// cannot be located.
	ErrMalformedProgram = errors.New("urscript: malformed program")

	// ErrProgramFailed indicates that the monitored program ended with the execution
	// error flag set: a safety stop, or a program that stopped running before its end.
	ErrProgramFailed = errors.New("urscript: program execution failed")
)
