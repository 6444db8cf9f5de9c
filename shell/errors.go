package shell

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrMalformedCommand matches every *MalformedCommandError.
var ErrMalformedCommand = errors.New("malformed command")

// ErrSessionBusy is returned when a batch is submitted while another batch
// is in flight on the same session.
var ErrSessionBusy = errors.New("session already has a batch in flight")

// TransportError reports a failure of the channel itself: the bridge exited
// non-zero, the connection dropped, or a file copy failed.
type TransportError struct {
	Op string
	// ExitCode is the exit code of the bridge process, or -1 when it never
	// reported one.
	ExitCode int
	// Output holds the diagnostic bytes captured from the bridge, usually stderr.
	Output []byte
	Err    error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("transport %s failed", e.Op)
	if e.ExitCode >= 0 {
		msg = fmt.Sprintf("%s with exit code %d", msg, e.ExitCode)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if len(e.Output) > 0 {
		msg = fmt.Sprintf("%s (output: %q)", msg, e.Output)
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) Cause() error  { return e.Err }

// asTransportError wraps err unless it already is a *TransportError.
func asTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, ExitCode: -1, Err: err}
}

// MalformedCommandError is raised before anything is sent when a raw command
// string cannot be word-split, e.g. because of unbalanced quotes.
type MalformedCommandError struct {
	Command string
	Err     error
}

func (e *MalformedCommandError) Error() string {
	return fmt.Sprintf("malformed command %q: %v", e.Command, e.Err)
}

func (e *MalformedCommandError) Unwrap() error { return e.Err }
func (e *MalformedCommandError) Cause() error  { return e.Err }

func (e *MalformedCommandError) Is(target error) bool { return target == ErrMalformedCommand }

// CommandError is a remote command that exited non-zero.
type CommandError struct {
	Command string
	// Index is the batch position of the failing command.
	Index  int
	Output []byte
	Status int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("shell command failed with status %d: %s", e.Status, e.Command)
}

// ProtocolError means the raw response did not carry the markers the batch
// was compiled with, or a marker collided with command output.
type ProtocolError struct {
	Reason string
	Raw    []byte
	// Partial holds the results parsed before the inconsistency was found.
	Partial []CommandResult
}

func (e *ProtocolError) Error() string {
	return "marker protocol violation: " + e.Reason
}
