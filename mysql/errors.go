package mysql

import (
	"fmt"

	"github.com/pingcap/errors"
)

// Error kinds, spec.md §7. Each is a distinct type so callers can use
// errors.As against the pointer type, while errors.Cause(err) on any
// wrapped instance unwraps back to one of these.

// NetworkError wraps a transport EOF or I/O failure encountered mid-packet.
// It is always fatal to the connection.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("mysqlwire: network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError is returned when the server rejects the handshake.
type AuthError struct {
	Payload *ErrPacket
}

func (e *AuthError) Error() string {
	if e.Payload == nil {
		return "mysqlwire: authentication failed"
	}
	return fmt.Sprintf("mysqlwire: authentication failed: %s", e.Payload.Message)
}

// ErrError is a server-reported command failure (the MySQL ERR packet).
// It is recoverable: the connection stays usable if the error arrived
// before any rows began streaming.
type ErrError struct {
	Code     uint16
	SQLState string
	Message  string
}

func (e *ErrError) Error() string {
	return fmt.Sprintf("mysqlwire: ERROR %d (%s): %s", e.Code, e.SQLState, e.Message)
}

// UnexpectedPacketError signals protocol desync: a response packet whose
// leading byte matched none of the forms expected for the in-flight
// command. Fatal.
type UnexpectedPacketError struct {
	Context string
	Leading byte
}

func (e *UnexpectedPacketError) Error() string {
	return fmt.Sprintf("mysqlwire: unexpected packet in %s (leading byte 0x%02x)", e.Context, e.Leading)
}

// ErrUnconsumedResultSet is returned when a command is issued while a
// previous row stream is still open. A precondition violation, not
// fatal to the connection.
var ErrUnconsumedResultSet = errors.New("mysqlwire: previous result set not fully consumed")

// DecodeError is returned by the value codec when a field cannot be
// parsed: bad length, bad lexeme, or an unsupported wire form.
type DecodeError struct {
	Context string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("mysqlwire: decode error in %s: %v", e.Context, e.Err)
}
func (e *DecodeError) Unwrap() error { return e.Err }

func wrapNetworkErr(err error) error {
	if err == nil {
		return nil
	}
	return errors.Trace(&NetworkError{Err: err})
}

func newDecodeError(context string, err error) error {
	return errors.Trace(&DecodeError{Context: context, Err: err})
}

func newDecodeErrorf(context, format string, args ...interface{}) error {
	return newDecodeError(context, fmt.Errorf(format, args...))
}

// WrapNetworkErr builds a NetworkError, traced with pingcap/errors so
// ErrorStack(err) is available to callers running in development.
func WrapNetworkErr(err error) error { return wrapNetworkErr(err) }

// NewDecodeError builds a DecodeError for the value codec.
func NewDecodeError(context string, err error) error { return newDecodeError(context, err) }

// NewDecodeErrorf builds a DecodeError from a formatted message.
func NewDecodeErrorf(context, format string, args ...interface{}) error {
	return newDecodeErrorf(context, format, args...)
}
