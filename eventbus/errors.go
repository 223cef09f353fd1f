package eventbus

import "errors"

// ErrTimeout is returned by WaitFor when no matching event arrives before the
// deadline. It is the sole error surface the bus exposes to callers; handler
// failures are logged and swallowed rather than propagated (see Bus.Emit).
var ErrTimeout = errors.New("eventbus: timed out waiting for event")
