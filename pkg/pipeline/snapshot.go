package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"zkpoe/pkg/disclosure"
	"zkpoe/pkg/field"
	"zkpoe/pkg/prover"
	"zkpoe/pkg/web3"
)

// Secrets are the private inputs of a session. Stores keep them sealed.
type Secrets struct {
	Salt     field.Bytes31 `cbor:"salt"`
	Email    string        `cbor:"email,omitempty"`
	FileType string        `cbor:"fileType,omitempty"`
}

// Snapshot is the persistable state of a session.
type Snapshot struct {
	ID          string            `cbor:"id"`
	Mode        Mode              `cbor:"mode"`
	State       State             `cbor:"state"`
	FailedStage State             `cbor:"failedStage,omitempty"`
	LastError   string            `cbor:"lastError,omitempty"`
	ErrorKind   ErrorKind         `cbor:"errorKind,omitempty"`
	FileName    string            `cbor:"fileName"`
	FileSize    uint64            `cbor:"fileSize"`
	Digest      field.Digest      `cbor:"digest"`
	Document    field.Bytes31     `cbor:"document"`
	Commitment  field.Element     `cbor:"commitment"`
	AnchoredAt  uint64            `cbor:"anchoredAt,omitempty"`
	Claim       *disclosure.Claim `cbor:"claim,omitempty"`
	Artifact    *prover.Artifact  `cbor:"artifact,omitempty"`
	Submission  *web3.Submission  `cbor:"submission,omitempty"`
	CreatedAt   time.Time         `cbor:"createdAt"`
	UpdatedAt   time.Time         `cbor:"updatedAt"`
	Secrets     Secrets           `cbor:"secrets"`
}

// Snapshot captures the session. An operation in flight is captured as the
// state it started from failing, so a restored session retries it.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:          s.id.String(),
		Mode:        s.mode,
		State:       s.state,
		FailedStage: s.failedStage,
		FileName:    s.fileName,
		FileSize:    s.fileSize,
		Digest:      s.digest,
		Document:    s.document,
		Commitment:  s.commitment,
		AnchoredAt:  s.anchoredAt,
		Artifact:    s.artifact,
		Submission:  s.submission,
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
		Secrets: Secrets{
			Salt:     s.salt,
			Email:    s.email,
			FileType: s.fileType,
		},
	}
	if s.claim != nil {
		c := *s.claim
		snap.Claim = &c
	}
	var se *StageError
	if errors.As(s.lastErr, &se) {
		snap.LastError = se.Err.Error()
		snap.ErrorKind = se.Kind
	} else if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	if s.state == StateProving || s.state == StateSubmitting {
		snap.FailedStage = s.state
		snap.State = StateError
		snap.LastError = "interrupted"
		snap.ErrorKind = KindCancelled
	}
	return snap
}

// Restore rebuilds a session from a snapshot.
func Restore(snap Snapshot, deps Deps) (*Session, error) {
	id, err := uuid.Parse(snap.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid session id: %w", err)
	}
	s, err := New(snap.Mode, deps)
	if err != nil {
		return nil, err
	}
	state := snap.State
	failed := snap.FailedStage
	if state == StateProving || state == StateSubmitting {
		state, failed = StateError, state
	}
	s.id = id
	s.state = state
	s.failedStage = failed
	if snap.LastError != "" {
		kind := snap.ErrorKind
		if kind == "" {
			kind = KindRuntime
		}
		s.lastErr = &StageError{Stage: failed, Kind: kind, Err: errors.New(snap.LastError)}
	}
	s.fileName = snap.FileName
	s.fileSize = snap.FileSize
	s.digest = snap.Digest
	s.document = snap.Document
	s.commitment = snap.Commitment
	s.anchoredAt = snap.AnchoredAt
	s.artifact = snap.Artifact
	s.submission = snap.Submission
	s.createdAt = snap.CreatedAt
	s.updatedAt = snap.UpdatedAt
	s.salt = snap.Secrets.Salt
	s.email = snap.Secrets.Email
	s.fileType = snap.Secrets.FileType
	if snap.Claim != nil {
		c := *snap.Claim
		s.claim = &c
	}
	return s, nil
}
