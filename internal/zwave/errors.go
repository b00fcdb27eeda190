package zwave

import "errors"

// Frame- and node-scoped failures. None of them is fatal to the network;
// HandleFrame returns them for the caller to log and moves on.
var (
	ErrUnknownCommandClass    = errors.New("zwave: unknown command class")
	ErrUnresolvedDeviceClass  = errors.New("zwave: unresolved device class")
	ErrHandlerAbsent          = errors.New("zwave: no handler for command class")
	ErrUnknownNode            = errors.New("zwave: unknown node")
	ErrUnknownEndpoint        = errors.New("zwave: unknown endpoint")
	ErrTruncatedEncapsulation = errors.New("zwave: truncated encapsulation")
	ErrReadOnlyParameter      = errors.New("zwave: parameter is read-only")
	ErrValueOutOfRange        = errors.New("zwave: value out of range")
)
