package bus

import "errors"

// Error categories. Component sentinels wrap exactly one of these.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrProtocol      = errors.New("protocol error")
	ErrTimeout       = errors.New("timeout error")
	ErrTransport     = errors.New("transport error")
)

var (
	ErrNoRoute        = errors.New("bus: no route to window")
	ErrWindowClosed   = errors.New("bus: window closed")
	ErrRemote         = errors.New("bus: remote handler failed")
	ErrNoHandler      = errors.New("bus: no handler for message")
	ErrOriginMismatch = errors.New("bus: reply origin does not match expected domain")
)
