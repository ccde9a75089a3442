package bridge

import (
	"fmt"

	"github.com/danmuck/crosslink/internal/bus"
)

var (
	ErrSelfBridge    = fmt.Errorf("%w: bridge: cannot bridge to own domain", bus.ErrConfiguration)
	ErrNameCollision = fmt.Errorf("%w: bridge: frame name already in use", bus.ErrConfiguration)
	ErrLoadFailed    = fmt.Errorf("%w: bridge: frame load failed", bus.ErrTransport)

	ErrDomainMismatch   = fmt.Errorf("%w: bridge: domain mismatch", bus.ErrProtocol)
	ErrMissingField     = fmt.Errorf("%w: bridge: missing field", bus.ErrProtocol)
	ErrUnknownWindow    = fmt.Errorf("%w: bridge: unknown window", bus.ErrProtocol)
	ErrUnverifiedDomain = fmt.Errorf("%w: bridge: unverified domain", bus.ErrProtocol)
)
