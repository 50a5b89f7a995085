package ensight

import (
	"fmt"
	"strings"

	"github.com/ansys/pyensight-sub000/protocol"
)

// ErrorKind categorizes a session error. Match with errors.Is against the
// exported kind sentinels:
//
//	if errors.Is(err, ensight.ErrStaleObject) { ... }
type ErrorKind string

const (
	// KindProtocolSequence is a client-side ordering violation: an `end`
	// with no open group, a same-class nested group, or a close that does
	// not match the innermost open group. Detected before any wire traffic.
	KindProtocolSequence ErrorKind = "protocol_sequence"

	// KindStaleObject is an access through a proxy whose remote object no
	// longer exists.
	KindStaleObject ErrorKind = "stale_object"

	// KindRemoteCommand is a command the engine received, understood, and
	// rejected.
	KindRemoteCommand ErrorKind = "remote_command"

	// KindBadIdentifier is a class, object, attribute, or command name the
	// engine does not know.
	KindBadIdentifier ErrorKind = "bad_identifier"

	// KindTransportFailure is a dead or desynchronized connection. Fatal to
	// the session: every later call fails with this kind.
	KindTransportFailure ErrorKind = "transport_failure"

	// KindEncoding is a value that cannot be represented on the wire.
	KindEncoding ErrorKind = "encoding"
)

// kind sentinels for errors.Is
var (
	ErrProtocolSequence = &Error{Kind: KindProtocolSequence}
	ErrStaleObject      = &Error{Kind: KindStaleObject}
	ErrRemoteCommand    = &Error{Kind: KindRemoteCommand}
	ErrBadIdentifier    = &Error{Kind: KindBadIdentifier}
	ErrTransportFailure = &Error{Kind: KindTransportFailure}
	ErrEncoding         = &Error{Kind: KindEncoding}
)

// Error is the structured error for every failure surfaced by this package.
// `Command` carries the rendered journal text of the failing command when one
// exists, so the failure can be correlated with a journal recording.
type Error struct {
	Kind    ErrorKind
	Command string
	Message string
	Status  int32
	Cause   error
}

func (self *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(self.Kind))
	if self.Message != "" {
		b.WriteString(": ")
		b.WriteString(self.Message)
	}
	if self.Command != "" {
		fmt.Fprintf(&b, " (command %q)", self.Command)
	}
	if self.Cause != nil {
		fmt.Fprintf(&b, " caused by: %s", self.Cause)
	}
	return b.String()
}

func (self *Error) Unwrap() error {
	return self.Cause
}

// Is matches by kind so sentinels compare against any error of the same kind.
func (self *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return self.Kind == t.Kind
	}
	return false
}

// KindOf returns the kind of err if it is (or wraps) an *Error.
func KindOf(err error) (ErrorKind, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return "", false
		}
		err = u.Unwrap()
	}
	return "", false
}

func sequenceError(format string, args ...any) *Error {
	return &Error{
		Kind:    KindProtocolSequence,
		Message: fmt.Sprintf(format, args...),
	}
}

func staleError(command string, format string, args ...any) *Error {
	return &Error{
		Kind:    KindStaleObject,
		Command: command,
		Message: fmt.Sprintf(format, args...),
	}
}

func encodingError(format string, args ...any) *Error {
	return &Error{
		Kind:    KindEncoding,
		Message: fmt.Sprintf(format, args...),
	}
}

func transportError(cause error, format string, args ...any) *Error {
	return &Error{
		Kind:    KindTransportFailure,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// statusError maps an engine status code to the error taxonomy. Callers pass
// the rendered command text for context. StatusOk maps to nil.
func statusError(status int32, message string, command string) *Error {
	if status == protocol.StatusOk {
		return nil
	}
	var kind ErrorKind
	switch status {
	case protocol.StatusStaleObject:
		kind = KindStaleObject
	case protocol.StatusBadIdentifier:
		kind = KindBadIdentifier
	case protocol.StatusSequence:
		kind = KindProtocolSequence
	default:
		kind = KindRemoteCommand
	}
	return &Error{
		Kind:    kind,
		Command: command,
		Message: message,
		Status:  status,
	}
}
