package engine

import "fmt"

// ConnectionError reports that the backend session could not be opened.
// Never retried internally; the caller decides whether to try again.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SendError reports that the transport rejected an outgoing utterance.
// Only that utterance fails; the queue continues with the next one.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send error: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// DisconnectedError is raised against every pending utterance when the
// session is torn down or lost
type DisconnectedError struct{}

func (e *DisconnectedError) Error() string {
	return "session disconnected"
}

// DecodeError reports a fragment that failed to decode. It is local to
// that fragment: logged, swallowed, never surfaced to the caller.
type DecodeError struct {
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error on fragment %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
