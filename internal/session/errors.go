package session

import (
	"errors"
	"fmt"
)

// Kind classifies why a session failed
type Kind int

const (
	KindResolution Kind = iota + 1
	KindConnect
	KindTransmission
	KindProtocol
)

// Sentinel errors matched by errors.Is against an *Error.
// A resolution failure also matches ErrConnect.
var (
	ErrResolution   = errors.New("resolution error")
	ErrConnect      = errors.New("connect error")
	ErrTransmission = errors.New("transmission error")
	ErrProtocol     = errors.New("protocol error")
)

// ErrEmptyResponse is the cause recorded when a receive returns no data
var ErrEmptyResponse = errors.New("empty response")

// ErrNothingSent is the cause recorded when a send reports zero bytes written
var ErrNothingSent = errors.New("no bytes sent")

func (k Kind) sentinel() error {
	switch k {
	case KindResolution:
		return ErrResolution
	case KindConnect:
		return ErrConnect
	case KindTransmission:
		return ErrTransmission
	case KindProtocol:
		return ErrProtocol
	default:
		return nil
	}
}

func (k Kind) String() string {
	if err := k.sentinel(); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the single failed outcome of one FetchReading call
type Error struct {
	Kind  Kind
	State State // state the session was in when it failed
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s while %s: %v", e.Kind, e.State, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error kind
func (e *Error) Is(target error) bool {
	if target == e.Kind.sentinel() {
		return true
	}
	return e.Kind == KindResolution && target == ErrConnect
}
