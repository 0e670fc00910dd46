package wamp

import (
	"errors"
	"fmt"
)

var (
	ErrorNotReady          = errors.New("NotReady")
	ErrorTimedOut          = errors.New("TimedOut")
	ErrorConnectionClosed  = errors.New("ConnectionClosed")
	ErrorConnectionLost    = errors.New("ConnectionLost")
	ErrorProtocolViolation = errors.New("ProtocolViolation")
)

// ProtocolError carries an ERROR or ABORT received from the router
type ProtocolError struct {
	URI    string
	Args   []any
	Kwargs map[string]any
}

func (e *ProtocolError) Error() string {
	if len(e.Args) > 0 {
		if message, ok := e.Args[0].(string); ok && len(message) > 0 {
			return fmt.Sprintf("%s: %s", e.URI, message)
		}
	}
	if message, ok := e.Kwargs["message"].(string); ok && len(message) > 0 {
		return fmt.Sprintf("%s: %s", e.URI, message)
	}
	return e.URI
}

func newProtocolError(event ErrorEvent) *ProtocolError {
	features := event.Features()
	return &ProtocolError{features.URI, event.Arguments(), event.ArgumentsKw()}
}

func newAbortError(event AbortEvent) *ProtocolError {
	features := event.Features()
	e := ProtocolError{URI: features.Reason}
	if message, ok := features.Details["message"]; ok {
		e.Args = []any{message}
	}
	return &e
}
