package usi

import "errors"

// Sentinel errors for the kinds named in the design: these are compared with
// errors.Is by callers (the Match Controller in particular).
var (
	// ErrNotFound indicates the engine executable does not exist.
	ErrNotFound = errors.New("usi: engine not found")
	// ErrConnect indicates the child process failed to spawn.
	ErrConnect = errors.New("usi: engine connect failed")
	// ErrIllegalState indicates a command was issued from a state that does
	// not permit it, e.g. "go" issued while not WaitCommand.
	ErrIllegalState = errors.New("usi: illegal state")
	// ErrBadTimeSpec indicates an unrecognized time-control token.
	ErrBadTimeSpec = errors.New("usi: bad time spec")
	// ErrDisconnected indicates a wait was abandoned because the session
	// reached the terminal Disconnected state.
	ErrDisconnected = errors.New("usi: session disconnected")
	// ErrChildDied indicates the read-worker observed the child process
	// exit unexpectedly (nonzero exit, broken pipe) rather than a clean quit.
	ErrChildDied = errors.New("usi: child process died")
	// ErrQueueFull indicates the bounded send queue rejected a command.
	ErrQueueFull = errors.New("usi: send queue full")
)
