package wampEngine

import (
	"errors"
	"strings"
)

type ErrorKind int

const (
	KindConfiguration ErrorKind = iota + 1
	KindNotReady
	KindConnection
	KindSubscribe
	KindNoSession
	KindSinkIO
)

var (
	ErrorConfiguration = errors.New("ConfigurationError")
	ErrorNotReady      = errors.New("NotReady")
	ErrorConnection    = errors.New("ConnectionError")
	ErrorSubscribe     = errors.New("SubscribeError")
	ErrorNoSession     = errors.New("NoSession")
	ErrorSinkIO        = errors.New("SinkIOError")
)

func (kind ErrorKind) sentinel() error {
	switch kind {
	case KindConfiguration:
		return ErrorConfiguration
	case KindNotReady:
		return ErrorNotReady
	case KindConnection:
		return ErrorConnection
	case KindSubscribe:
		return ErrorSubscribe
	case KindNoSession:
		return ErrorNoSession
	case KindSinkIO:
		return ErrorSinkIO
	}
	return nil
}

func (kind ErrorKind) String() string {
	e := kind.sentinel()
	if e == nil {
		return "Unknown"
	}
	return e.Error()
}

// Error annotates a failure with the realm and topic it belongs to.
// errors.Is matches both the kind sentinel and the wrapped cause.
type Error struct {
	Kind  ErrorKind
	Realm string
	Topic string
	Err   error
}

func newError(kind ErrorKind, realm string, topic string, e error) *Error {
	return &Error{kind, realm, topic, e}
}

func (e *Error) Error() string {
	var builder strings.Builder
	builder.WriteString(e.Kind.String())
	if len(e.Realm) > 0 {
		builder.WriteString(" realm=" + e.Realm)
	}
	if len(e.Topic) > 0 {
		builder.WriteString(" topic=" + e.Topic)
	}
	if e.Err != nil {
		builder.WriteString(": " + e.Err.Error())
	}
	return builder.String()
}

func (e *Error) Unwrap() []error {
	result := []error{e.Kind.sentinel()}
	if e.Err != nil {
		result = append(result, e.Err)
	}
	return result
}

// KindOf reports the kind of the first *Error in the chain
func KindOf(e error) (ErrorKind, bool) {
	var instance *Error
	if errors.As(e, &instance) {
		return instance.Kind, true
	}
	return 0, false
}
