package models

import "errors"

// ErrTransportFailure is any network or connection failure talking to the simulation.
// The snapshot is left unchanged and the failure is shown as a status message.
var ErrTransportFailure error = errors.New("transport failure")

// ErrMalformedPayload is returned when a reply or frame does not have the expected shape:
// not a record list or key/value mapping, a bad key encoding, an out-of-range action.
var ErrMalformedPayload error = errors.New("malformed payload")

// ErrProtocolViolation is returned when an operation is not allowed in the current
// state, e.g. a step while the game is over. It is raised before any I/O.
var ErrProtocolViolation error = errors.New("protocol violation")

// ErrInvariantViolation is returned when an update would place the maze in an
// impossible configuration (overlapping or out of bounds cells).
var ErrInvariantViolation error = errors.New("invariant violation")

// ErrStaleGeneration is returned for updates issued before the latest reset.
var ErrStaleGeneration error = errors.New("stale generation")
