// Package zkruntime compiles the proof-of-existence circuits and owns their
// proving and verifying keys. It is process-wide state: initialize once, read
// many.
package zkruntime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"golang.org/x/sync/singleflight"

	"zkpoe/circuits/commitment"
	"zkpoe/circuits/disclosure"
	"zkpoe/circuits/timestamp"
	"zkpoe/pkg/field"
	"zkpoe/pkg/log"
)

// CircuitID names one of the compiled circuits.
type CircuitID string

const (
	CommitmentCircuit CircuitID = "commitment"
	TimestampCircuit  CircuitID = "timestamp"
	DisclosureCircuit CircuitID = "disclosure"
)

// Circuits lists every circuit the runtime loads, in load order.
var Circuits = []CircuitID{CommitmentCircuit, TimestampCircuit, DisclosureCircuit}

var (
	ErrNotInitialized = errors.New("circuit runtime not initialized")
	ErrUnknownCircuit = errors.New("unknown circuit")
	ErrUnknownScheme  = errors.New("unknown proving scheme")
)

// Definition returns an empty circuit definition for id.
func Definition(id CircuitID) (frontend.Circuit, error) {
	switch id {
	case CommitmentCircuit:
		return &commitment.Circuit{}, nil
	case TimestampCircuit:
		return &timestamp.Circuit{}, nil
	case DisclosureCircuit:
		return &disclosure.Circuit{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCircuit, id)
	}
}

// NbPublicInputs is the number of public inputs of a circuit.
func NbPublicInputs(id CircuitID) int {
	switch id {
	case CommitmentCircuit:
		return 1
	case TimestampCircuit:
		return 2
	case DisclosureCircuit:
		// commitment, three flags, domain hash, size min and max, file type
		return 7 + disclosure.FileTypeLen
	default:
		return 0
	}
}

// Config of the runtime.
type Config struct {
	// ArtifactsDir stores the keys between runs. Empty keeps them in memory.
	ArtifactsDir string
	// Scheme is the proving scheme name, groth16 by default.
	Scheme string
	// Only restricts the loaded circuits, all of them when empty.
	Only []CircuitID
}

// Compiled is one circuit ready for proving.
type Compiled struct {
	ID          CircuitID
	CCS         constraint.ConstraintSystem
	Keys        Keys
	VKHash      string
	Constraints int
}

// Runtime holds the compiled circuits.
type Runtime struct {
	cfg    Config
	scheme Scheme

	init     singleflight.Group
	mu       sync.RWMutex
	circuits map[CircuitID]*Compiled
}

// New creates an uninitialized runtime.
func New(cfg Config) (*Runtime, error) {
	scheme, err := NewScheme(cfg.Scheme)
	if err != nil {
		return nil, err
	}
	if len(cfg.Only) == 0 {
		cfg.Only = Circuits
	}
	return &Runtime{cfg: cfg, scheme: scheme}, nil
}

// Scheme returns the proving scheme in use.
func (r *Runtime) Scheme() Scheme { return r.scheme }

// Ready reports whether Ensure has completed successfully.
func (r *Runtime) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.circuits != nil
}

// Ensure initializes the runtime once. Concurrent callers wait for the same
// in-flight initialization; a failed initialization is not cached, so a later
// call retries it. The context only bounds how long this caller waits.
func (r *Runtime) Ensure(ctx context.Context) error {
	if r.Ready() {
		return nil
	}
	ch := r.init.DoChan("init", func() (any, error) {
		if r.Ready() {
			return nil, nil
		}
		circuits, err := r.load()
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.circuits = circuits
		r.mu.Unlock()
		return nil, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) load() (map[CircuitID]*Compiled, error) {
	start := time.Now()
	circuits := make(map[CircuitID]*Compiled, len(r.cfg.Only))
	for _, id := range r.cfg.Only {
		c, err := r.loadCircuit(id)
		if err != nil {
			return nil, fmt.Errorf("circuit %s: %w", id, err)
		}
		circuits[id] = c
	}
	log.Infow("circuit runtime ready",
		"scheme", r.scheme.Name(),
		"circuits", len(circuits),
		"took", time.Since(start).String())
	return circuits, nil
}

func (r *Runtime) loadCircuit(id CircuitID) (*Compiled, error) {
	def, err := Definition(id)
	if err != nil {
		return nil, err
	}
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r.scheme.Builder(), def)
	if err != nil {
		return nil, fmt.Errorf("compilation failed: %w", err)
	}
	keys, err := r.keysFor(id, ccs)
	if err != nil {
		return nil, err
	}
	vkBytes, err := keys.VerifyingKeyBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize verifying key: %w", err)
	}
	vkHash := sha256.Sum256(vkBytes)
	c := &Compiled{
		ID:          id,
		CCS:         ccs,
		Keys:        keys,
		VKHash:      hex.EncodeToString(vkHash[:]),
		Constraints: ccs.GetNbConstraints(),
	}
	log.Debugw("circuit loaded",
		"circuit", string(id),
		"constraints", c.Constraints,
		"vkHash", c.VKHash[:16])
	return c, nil
}

// Circuit returns a compiled circuit. Ensure must have succeeded first.
func (r *Runtime) Circuit(id CircuitID) (*Compiled, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.circuits == nil {
		return nil, ErrNotInitialized
	}
	c, ok := r.circuits[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCircuit, id)
	}
	return c, nil
}

// Witness builds a full witness from a circuit assignment.
func Witness(assignment frontend.Circuit) (witness.Witness, error) {
	return frontend.NewWitness(assignment, ecc.BN254.ScalarField())
}

// PublicWitness rebuilds a public witness from ordered public inputs.
func PublicWitness(inputs []field.Element) (witness.Witness, error) {
	w, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}
	values := make(chan any, len(inputs))
	for _, in := range inputs {
		values <- in.BigInt()
	}
	close(values)
	if err := w.Fill(len(inputs), 0, values); err != nil {
		return nil, fmt.Errorf("failed to fill public witness: %w", err)
	}
	return w, nil
}

// Verify checks a native proof against the verifying key of id and the
// ordered public inputs.
func (r *Runtime) Verify(id CircuitID, native []byte, inputs []field.Element) error {
	c, err := r.Circuit(id)
	if err != nil {
		return err
	}
	if n := c.Keys.NbPublicWitness(); n != len(inputs) {
		return fmt.Errorf("circuit %s expects %d public inputs, got %d", id, n, len(inputs))
	}
	pub, err := PublicWitness(inputs)
	if err != nil {
		return err
	}
	if err := r.scheme.Verify(c.Keys, native, pub); err != nil {
		return fmt.Errorf("proof verification failed: %w", err)
	}
	return nil
}
