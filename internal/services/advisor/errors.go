package advisor

import "errors"

// Failure classification for the response pipeline. Context errors surface
// before any bytes reach the client; upstream errors after the first chunk
// has been sent are downgraded to terminal stream events and never become
// HTTP errors.
var (
	ErrContextUnavailable  = errors.New("advisor: conversation context unavailable")
	ErrUpstreamUnavailable = errors.New("advisor: completion service unavailable")
	ErrUpstreamInterrupted = errors.New("advisor: completion stream interrupted")
	ErrResourceUnavailable = errors.New("advisor: resource pool unavailable")
)
