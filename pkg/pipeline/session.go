// Package pipeline drives one document through selection, commitment,
// proving and submission. A Session is a resumable state machine: failed
// stages keep everything produced before them and can be retried.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"zkpoe/pkg/disclosure"
	"zkpoe/pkg/field"
	"zkpoe/pkg/log"
	"zkpoe/pkg/prover"
	"zkpoe/pkg/web3"
)

const eventBuffer = 64

// Engine computes commitments and domain hashes.
type Engine interface {
	ComputeCommitment(ctx context.Context, document, salt field.Bytes31) (field.Element, error)
	ComputeDomainHash(domainOrEmail string) (field.Element, error)
}

// Prover generates proofs.
type Prover interface {
	GenerateBasicProof(ctx context.Context, p prover.BasicParams, progress chan<- prover.Stage) (*prover.Artifact, error)
	GenerateDisclosureProof(ctx context.Context, p prover.DisclosureParams, progress chan<- prover.Stage) (*prover.Artifact, error)
}

// Registry is the on-chain commitment registry.
type Registry interface {
	VerifyExistence(ctx context.Context, commitment field.Element) (web3.Existence, error)
	SubmitProof(ctx context.Context, proof []byte, commitment, timestampField field.Element) (*web3.Submission, error)
	SubmitDisclosure(ctx context.Context, proof []byte, commitment field.Element, claim disclosure.Claim) (*web3.Submission, error)
}

// Deps are the collaborators of a session.
type Deps struct {
	Engine   Engine
	Prover   Prover
	Registry Registry
	// Now is the session clock, time.Now when nil.
	Now func() time.Time
}

// Session is one pass of a document through the pipeline.
type Session struct {
	id   uuid.UUID
	mode Mode
	deps Deps

	mu          sync.Mutex
	state       State
	failedStage State
	lastErr     error
	busy        bool
	cancel      context.CancelFunc
	subs        []chan Event
	createdAt   time.Time
	updatedAt   time.Time

	fileName   string
	fileSize   uint64
	digest     field.Digest
	document   field.Bytes31
	salt       field.Bytes31
	commitment field.Element
	anchoredAt uint64
	email      string
	fileType   string
	claim      *disclosure.Claim
	artifact   *prover.Artifact
	submission *web3.Submission
}

// New creates an idle session.
func New(mode Mode, deps Deps) (*Session, error) {
	if mode != ModeBasic && mode != ModeDisclosure {
		return nil, fmt.Errorf("unknown session mode %q", mode)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	now := deps.Now()
	return &Session{
		id:        uuid.New(),
		mode:      mode,
		deps:      deps,
		state:     StateIdle,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// Mode returns the session mode.
func (s *Session) Mode() Mode { return s.mode }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error of the last failed stage, if the session is in
// StateError.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Commitment returns the commitment once computed.
func (s *Session) Commitment() field.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitment
}

// Salt returns the salt of the commitment.
func (s *Session) Salt() field.Bytes31 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.salt
}

// Artifact returns the generated proof, kept across submission failures.
func (s *Session) Artifact() *prover.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

// Submission returns the confirmed transaction.
func (s *Session) Submission() *web3.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submission
}

// Subscribe returns a stream of state changes, progress labels and errors.
// Events are dropped when the reader falls behind. The channel is closed
// once the session reaches a terminal state.
func (s *Session) Subscribe() <-chan Event {
	ch := make(chan Event, eventBuffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

// SelectFile hashes the document read from r. size is the declared size;
// the reader is still capped, so a lying size cannot exceed MaxFileSize.
// A rejected file leaves the state unchanged.
func (s *Session) SelectFile(name string, size int64, r io.Reader) error {
	return s.run(context.Background(), step{
		stage: StateFileSelected,
		from:  []State{StateIdle, StateFileSelected},
		done:  StateFileSelected,
		soft:  true,
	}, func(context.Context) (func(), error) {
		if size > MaxFileSize {
			return nil, fmt.Errorf("%w: %d bytes, limit is %d", ErrFileTooLarge, size, MaxFileSize)
		}
		lr := &io.LimitedReader{R: r, N: MaxFileSize + 1}
		digest, err := field.DigestReader(lr)
		if err != nil {
			return nil, err
		}
		read := MaxFileSize + 1 - lr.N
		if read > MaxFileSize {
			return nil, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, MaxFileSize)
		}
		return func() {
			s.fileName = name
			s.fileSize = uint64(read)
			s.digest = digest
			s.document = field.ToFieldElement(digest)
			s.salt = field.Bytes31{}
			s.commitment = field.Element{}
			s.claim, s.artifact = nil, nil
		}, nil
	})
}

// Commit draws a fresh salt and commits to the selected document.
func (s *Session) Commit(ctx context.Context) error {
	return s.run(ctx, step{
		stage: StateCommitted,
		from:  []State{StateFileSelected},
		done:  StateCommitted,
		guard: s.requireMode(ModeBasic),
	}, func(ctx context.Context) (func(), error) {
		salt, err := field.RandomSalt()
		if err != nil {
			return nil, err
		}
		c, err := s.deps.Engine.ComputeCommitment(ctx, s.document, salt)
		if err != nil {
			return nil, err
		}
		return func() {
			s.salt = salt
			s.commitment = c
		}, nil
	})
}

// CommitExisting recomputes the commitment of the selected document with a
// known salt and requires it to be registered on chain.
func (s *Session) CommitExisting(ctx context.Context, salt field.Bytes31) error {
	return s.run(ctx, step{
		stage: StateCommitted,
		from:  []State{StateFileSelected},
		done:  StateCommitted,
		guard: s.requireMode(ModeDisclosure),
	}, func(ctx context.Context) (func(), error) {
		c, err := s.deps.Engine.ComputeCommitment(ctx, s.document, salt)
		if err != nil {
			return nil, err
		}
		e, err := s.deps.Registry.VerifyExistence(ctx, c)
		if err != nil {
			return nil, err
		}
		if !e.Exists {
			return nil, fmt.Errorf("%w: %s", ErrCommitmentNotFound, c.Hex())
		}
		return func() {
			s.salt = salt
			s.commitment = c
			s.anchoredAt = e.Timestamp
		}, nil
	})
}

// SetDisclosure validates and encodes what a disclosure proof reveals. The
// file size is always the size of the selected document. A rejected claim
// leaves the state unchanged. It may also replace a claim the circuit
// rejected during proving.
func (s *Session) SetDisclosure(flags disclosure.Flags, values disclosure.Values) error {
	return s.run(context.Background(), step{
		stage: StateCommitted,
		from:  []State{StateCommitted, StateError},
		done:  StateCommitted,
		soft:  true,
		guard: func() error {
			if err := s.requireMode(ModeDisclosure)(); err != nil {
				return err
			}
			if s.state == StateError && s.failedStage != StateProving {
				return fmt.Errorf("%w: cannot set disclosure after %s failed", ErrInvalidTransition, s.failedStage)
			}
			return nil
		},
	}, func(context.Context) (func(), error) {
		values.FileSize = s.fileSize
		claim, err := disclosure.EncodeClaim(s.deps.Engine, flags, values)
		if err != nil {
			return nil, err
		}
		return func() {
			s.email = values.Email
			s.fileType = values.FileType
			s.claim = &claim
			s.artifact = nil
		}, nil
	})
}

// Prove generates the proof of the session. Progress labels are published
// on the event stream.
func (s *Session) Prove(ctx context.Context) error {
	return s.run(ctx, step{
		stage:   StateProving,
		from:    []State{StateCommitted},
		running: StateProving,
		done:    StateProofReady,
		guard: func() error {
			if s.mode == ModeDisclosure && s.claim == nil {
				return fmt.Errorf("%w: no disclosure set", ErrInvalidTransition)
			}
			return nil
		},
	}, func(ctx context.Context) (func(), error) {
		progress := make(chan prover.Stage, len(prover.Stages))
		forwarded := make(chan struct{})
		go func() {
			defer close(forwarded)
			for st := range progress {
				s.mu.Lock()
				s.emitLocked(Event{Kind: EventProgress, State: StateProving, Stage: st})
				s.mu.Unlock()
			}
		}()

		var (
			a   *prover.Artifact
			err error
		)
		switch s.mode {
		case ModeBasic:
			a, err = s.deps.Prover.GenerateBasicProof(ctx, prover.BasicParams{
				Document:   s.document,
				Salt:       s.salt,
				Commitment: s.commitment,
				Timestamp:  uint64(s.deps.Now().Unix()),
			}, progress)
		case ModeDisclosure:
			a, err = s.deps.Prover.GenerateDisclosureProof(ctx, prover.DisclosureParams{
				Document:   s.document,
				Salt:       s.salt,
				Commitment: s.commitment,
				Email:      s.email,
				FileSize:   s.fileSize,
				FileType:   s.fileType,
				Claim:      *s.claim,
			}, progress)
		}
		close(progress)
		<-forwarded
		if err != nil {
			return nil, err
		}
		return func() { s.artifact = a }, nil
	})
}

// Submit sends the proof to the registry and waits for its confirmation.
// The artifact is reused as is, retrying a failed submission never proves
// again.
func (s *Session) Submit(ctx context.Context) error {
	return s.run(ctx, step{
		stage:   StateSubmitting,
		from:    []State{StateProofReady},
		running: StateSubmitting,
		done:    StateSubmitted,
		guard: func() error {
			if s.artifact == nil {
				return fmt.Errorf("%w: no proof to submit", ErrInvalidTransition)
			}
			if s.deps.Registry == nil {
				return fmt.Errorf("%w: no registry to submit to", ErrInvalidTransition)
			}
			return nil
		},
	}, func(ctx context.Context) (func(), error) {
		var (
			sub *web3.Submission
			err error
		)
		switch s.mode {
		case ModeBasic:
			if len(s.artifact.PublicInputs) < 2 {
				return nil, fmt.Errorf("%w: timestamp proof without timestamp input", ErrInvalidTransition)
			}
			sub, err = s.deps.Registry.SubmitProof(ctx, s.artifact.Proof, s.commitment, s.artifact.PublicInputs[1])
		case ModeDisclosure:
			sub, err = s.deps.Registry.SubmitDisclosure(ctx, s.artifact.Proof, s.commitment, *s.claim)
		}
		if err != nil {
			return nil, err
		}
		return func() {
			s.submission = sub
			if sub.Timestamp != 0 {
				s.anchoredAt = sub.Timestamp
			}
		}, nil
	})
}

// Cancel moves a non terminal session to StateCancelled and cancels the
// operation in flight, if any. That operation still returns only after the
// backend it uses has been released.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.setStateLocked(StateCancelled)
}

func (s *Session) requireMode(m Mode) func() error {
	return func() error {
		if s.mode != m {
			return fmt.Errorf("%w: %s session", ErrInvalidTransition, s.mode)
		}
		return nil
	}
}

// step describes one operation.
type step struct {
	// stage names the operation in errors; a session failed at stage can
	// retry it from StateError.
	stage State
	from  []State
	// running is the state while the operation runs, empty to keep the
	// current one.
	running State
	done    State
	// soft failures return an error without entering StateError.
	soft  bool
	guard func() error
}

// run executes op as st. op runs without the lock held; the busy flag keeps
// other operations, the only writers of the session data, out meanwhile.
// The returned func applies the results under the lock.
func (s *Session) run(parent context.Context, st step, op func(ctx context.Context) (func(), error)) error {
	s.mu.Lock()
	if err := s.beginLocked(st); err != nil {
		s.mu.Unlock()
		return &StageError{Stage: st.stage, Kind: classify(st.stage, err), Err: err}
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	prev := s.state
	if st.running != "" {
		s.setStateLocked(st.running)
	}
	s.mu.Unlock()

	apply, err := op(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	cancel()
	s.cancel = nil
	s.busy = false

	if s.state == StateCancelled {
		return &StageError{Stage: st.stage, Kind: KindCancelled, Err: context.Canceled}
	}
	if err != nil {
		se := &StageError{Stage: st.stage, Kind: classify(st.stage, err), Err: err}
		s.emitLocked(Event{Kind: EventError, State: s.state, Err: se})
		if st.soft {
			log.Warnw("pipeline input rejected",
				"session", s.id.String(),
				"stage", string(st.stage),
				"error", err.Error())
			return se
		}
		log.Errorw(se, "pipeline stage failed")
		s.lastErr = se
		s.failedStage = st.stage
		s.setStateLocked(StateError)
		return se
	}
	if apply != nil {
		apply()
	}
	s.lastErr = nil
	s.failedStage = ""
	if st.done != prev || st.running != "" {
		s.setStateLocked(st.done)
	}
	return nil
}

func (s *Session) beginLocked(st step) error {
	if s.busy {
		return ErrOperationInProgress
	}
	retry := s.state == StateError && s.failedStage == st.stage
	if !retry && !slices.Contains(st.from, s.state) {
		return fmt.Errorf("%w: cannot enter %s from %s", ErrInvalidTransition, st.stage, s.state)
	}
	if st.guard != nil {
		if err := st.guard(); err != nil {
			return err
		}
	}
	s.busy = true
	return nil
}

func (s *Session) setStateLocked(to State) {
	from := s.state
	s.state = to
	s.updatedAt = s.deps.Now()
	log.Infow("session state changed",
		"session", s.id.String(),
		"from", string(from),
		"to", string(to))
	s.emitLocked(Event{Kind: EventState, State: to})
	if to.Terminal() {
		for _, ch := range s.subs {
			close(ch)
		}
		s.subs = nil
	}
}

func (s *Session) emitLocked(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
