package apperrors

import "errors"

// Standardized pipeline errors
var (
	ErrParse                = errors.New("malformed frame")
	ErrUnknownEventType     = errors.New("unknown event type")
	ErrConvert              = errors.New("rate conversion failed")
	ErrTransport            = errors.New("transport error")
	ErrSubscribeRejected    = errors.New("subscribe rejected")
	ErrSink                 = errors.New("sink delivery failed")
	ErrQueueFull            = errors.New("dispatch queue full")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrNotConnected         = errors.New("not connected")
	ErrAlreadyRunning       = errors.New("already running")
	ErrClosed               = errors.New("closed")
	ErrInvalidSymbol        = errors.New("invalid symbol")
	ErrInvalidWindow        = errors.New("invalid window size")
	ErrMaxAttemptsExhausted = errors.New("max reconnect attempts exhausted")
	ErrNoRecipients         = errors.New("no whitelisted recipients")
)
