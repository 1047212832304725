package sim

import "errors"

// ErrNoDefaults is returned by AddAgent when SetAgentDefaults has not
// been called yet.
var ErrNoDefaults = errors.New("sim: agent defaults not set")

// ErrUnknownAgent is returned by any per-agent getter/setter given an id
// that doesn't name a live agent.
var ErrUnknownAgent = errors.New("sim: unknown agent id")
