// Package prover generates timestamp and disclosure proofs against the
// compiled circuits of a zkruntime.Runtime.
package prover

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/frontend"

	circuit "zkpoe/circuits/disclosure"
	"zkpoe/circuits/timestamp"
	"zkpoe/pkg/disclosure"
	"zkpoe/pkg/field"
	"zkpoe/pkg/log"
	"zkpoe/pkg/zkruntime"
)

// BasicParams are the inputs of a timestamp proof.
type BasicParams struct {
	Document   field.Bytes31
	Salt       field.Bytes31
	Commitment field.Element
	Timestamp  uint64
}

// DisclosureParams are the inputs of a selective disclosure proof. Email,
// FileSize and FileType are the true private values; Claim is what gets
// revealed.
type DisclosureParams struct {
	Document   field.Bytes31
	Salt       field.Bytes31
	Commitment field.Element
	Email      string
	FileSize   uint64
	FileType   string
	Claim      disclosure.Claim
}

// Generator owns the proving backend. It runs at most one proof at a time.
type Generator struct {
	rt     *zkruntime.Runtime
	hasher disclosure.DomainHasher

	// ProveTimeout bounds a whole generation. Zero means no limit.
	ProveTimeout time.Duration

	mu sync.Mutex
}

// New returns a generator proving with rt. The hasher recomputes the claimed
// domain hash of disclosure proofs.
func New(rt *zkruntime.Runtime, hasher disclosure.DomainHasher) *Generator {
	return &Generator{rt: rt, hasher: hasher}
}

// GenerateBasicProof proves knowledge of the preimage of p.Commitment, bound
// to p.Timestamp.
func (g *Generator) GenerateBasicProof(ctx context.Context, p BasicParams, progress chan<- Stage) (*Artifact, error) {
	return g.generate(ctx, zkruntime.TimestampCircuit, progress, func() (frontend.Circuit, error) {
		return timestamp.Assignment(p.Document, p.Salt, p.Commitment, p.Timestamp), nil
	})
}

// GenerateDisclosureProof proves the revealed properties of p.Claim against
// the committed document.
func (g *Generator) GenerateDisclosureProof(ctx context.Context, p DisclosureParams, progress chan<- Stage) (*Artifact, error) {
	return g.generate(ctx, zkruntime.DisclosureCircuit, progress, func() (frontend.Circuit, error) {
		in, err := g.disclosureInputs(p)
		if err != nil {
			return nil, err
		}
		return in.Assignment(), nil
	})
}

func (g *Generator) disclosureInputs(p DisclosureParams) (*circuit.Inputs, error) {
	email, err := field.EncodeFixedWidth(p.Email, circuit.EmailLen)
	if err != nil {
		return nil, fmt.Errorf("email: %w", err)
	}
	fileType, err := field.EncodeFixedWidth(p.FileType, circuit.FileTypeLen)
	if err != nil {
		return nil, fmt.Errorf("file type: %w", err)
	}
	in := &circuit.Inputs{
		DocumentHash:      p.Document,
		Salt:              p.Salt,
		FileSize:          p.FileSize,
		Commitment:        p.Commitment,
		RevealEmailDomain: p.Claim.Flags.EmailDomain,
		RevealSizeRange:   p.Claim.Flags.SizeRange,
		RevealFileType:    p.Claim.Flags.FileType,
		ClaimedSizeMin:    p.Claim.SizeMin,
		ClaimedSizeMax:    p.Claim.SizeMax,
		ClaimedFileType:   p.Claim.FileType,
	}
	copy(in.Email[:], email)
	copy(in.FileType[:], fileType)
	if p.Claim.Flags.EmailDomain {
		in.ClaimedDomainHash, err = g.hasher.ComputeDomainHash(p.Email)
		if err != nil {
			return nil, fmt.Errorf("domain hash: %w", err)
		}
	}
	return in, nil
}

func (g *Generator) generate(ctx context.Context, id zkruntime.CircuitID, progress chan<- Stage,
	build func() (frontend.Circuit, error),
) (*Artifact, error) {
	if !g.mu.TryLock() {
		return nil, ErrBackendBusy
	}
	defer g.mu.Unlock()

	if g.ProveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.ProveTimeout)
		defer cancel()
	}
	start := time.Now()

	report(progress, StageInitRuntime)
	if err := g.rt.Ensure(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntimeInit, err)
	}
	c, err := g.rt.Circuit(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntimeInit, err)
	}

	report(progress, StageWitness)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	assignment, err := build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWitnessGeneration, err)
	}
	w, err := zkruntime.Witness(assignment)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWitnessGeneration, err)
	}
	if err := c.CCS.IsSolved(w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWitnessGeneration, err)
	}
	inputs, err := zkruntime.PublicInputs(w)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWitnessGeneration, err)
	}
	log.Debugw("witness generated", "circuit", string(id), "publicInputs", len(inputs))

	report(progress, StageBackend)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Debugw("proving backend ready",
		"circuit", string(id),
		"scheme", g.rt.Scheme().Name(),
		"constraints", c.Constraints)

	report(progress, StageProving)
	proof, err := g.prove(ctx, c, w)
	if err != nil {
		return nil, err
	}

	a := &Artifact{
		Circuit:      id,
		Scheme:       g.rt.Scheme().Name(),
		Proof:        proof.Solidity,
		Native:       proof.Native,
		PublicInputs: inputs,
		ProvingTime:  time.Since(start),
		Constraints:  c.Constraints,
	}
	report(progress, StageDone)
	log.Infow("proof generated",
		"circuit", string(id),
		"commitment", field.Short(a.Commitment().Hex(), 8),
		"bytes", len(a.Proof),
		"took", a.ProvingTime.String())
	return a, nil
}

// prove runs the backend in its own goroutine. The backend does not observe
// the context, so on cancellation prove still waits for it to return before
// the caller releases the backend.
func (g *Generator) prove(ctx context.Context, c *zkruntime.Compiled, w witness.Witness) (*zkruntime.Proof, error) {
	type result struct {
		proof *zkruntime.Proof
		err   error
	}
	done := make(chan result, 1)
	go func() {
		p, err := g.rt.Scheme().Prove(c.CCS, c.Keys, w)
		done <- result{p, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProving, res.err)
		}
		return res.proof, nil
	case <-ctx.Done():
		<-done
		return nil, ctx.Err()
	}
}

// Verify checks an artifact natively against the verifying key of its
// circuit.
func (g *Generator) Verify(a *Artifact) error {
	if a.Scheme != g.rt.Scheme().Name() {
		return fmt.Errorf("artifact proved with %s, runtime uses %s", a.Scheme, g.rt.Scheme().Name())
	}
	return g.rt.Verify(a.Circuit, a.Native, a.PublicInputs)
}
