// Package commit derives hiding commitments and domain hashes with the same
// MiMC arithmetic the circuits use.
package commit

import (
	"context"
	"errors"
	"fmt"

	"zkpoe/circuits/commitment"
	"zkpoe/circuits/disclosure"
	"zkpoe/pkg/field"
	"zkpoe/pkg/log"
	"zkpoe/pkg/zkruntime"
)

var ErrCircuitExecution = errors.New("commitment circuit execution failed")

// Engine computes commitments. Every commitment is checked against the
// compiled commitment circuit before it is returned.
type Engine struct {
	rt *zkruntime.Runtime
}

// New returns an engine backed by rt.
func New(rt *zkruntime.Runtime) *Engine {
	return &Engine{rt: rt}
}

// Initialize prepares the circuit runtime. It is safe to call concurrently
// and repeatedly.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.rt.Ensure(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrCircuitExecution, err)
	}
	return nil
}

// ComputeCommitment returns MiMC(document, salt).
func (e *Engine) ComputeCommitment(ctx context.Context, document, salt field.Bytes31) (field.Element, error) {
	if err := e.Initialize(ctx); err != nil {
		return field.Element{}, err
	}
	c, err := e.rt.Circuit(zkruntime.CommitmentCircuit)
	if err != nil {
		return field.Element{}, fmt.Errorf("%w: %w", ErrCircuitExecution, err)
	}

	out := commitment.Hash(document, salt)

	w, err := zkruntime.Witness(commitment.Assignment(document, salt, out))
	if err != nil {
		return field.Element{}, fmt.Errorf("%w: witness: %w", ErrCircuitExecution, err)
	}
	if err := c.CCS.IsSolved(w); err != nil {
		return field.Element{}, fmt.Errorf("%w: %w", ErrCircuitExecution, err)
	}
	log.Debugw("commitment computed", "commitment", field.Short(out.Hex(), 8))
	return out, nil
}

// ComputeDomainHash hashes the domain part of an email, or a bare domain,
// exactly as the disclosure circuit does.
func (e *Engine) ComputeDomainHash(domainOrEmail string) (field.Element, error) {
	return disclosure.HashDomain(domainOrEmail)
}
