package pipeline

import (
	"zkpoe/pkg/prover"
)

// State of a session.
type State string

const (
	StateIdle         State = "idle"
	StateFileSelected State = "file_selected"
	StateCommitted    State = "committed"
	StateProving      State = "proving"
	StateProofReady   State = "proof_ready"
	StateSubmitting   State = "submitting"
	StateSubmitted    State = "submitted"
	StateError        State = "error"
	StateCancelled    State = "cancelled"
)

// Terminal reports whether no operation can leave s.
func (s State) Terminal() bool {
	return s == StateSubmitted || s == StateCancelled
}

// Mode selects the proof a session produces.
type Mode string

const (
	// ModeBasic commits to a new document and proves its timestamp.
	ModeBasic Mode = "basic"
	// ModeDisclosure proves properties of an already committed document.
	ModeDisclosure Mode = "disclosure"
)

// MaxFileSize is the largest accepted document, 50 MiB.
const MaxFileSize = 50 * 1024 * 1024

// EventKind tells which field of an Event is set.
type EventKind int

const (
	EventState EventKind = iota
	EventProgress
	EventError
)

// Event is one entry of the session stream.
type Event struct {
	Kind  EventKind
	State State
	Stage prover.Stage
	Err   error
}
