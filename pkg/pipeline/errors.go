package pipeline

import (
	"context"
	"errors"
	"fmt"

	"zkpoe/pkg/commit"
	"zkpoe/pkg/disclosure"
	"zkpoe/pkg/field"
	"zkpoe/pkg/prover"
	"zkpoe/pkg/web3"
)

var (
	ErrFileTooLarge        = errors.New("file too large")
	ErrCommitmentNotFound  = errors.New("commitment not found on chain")
	ErrOperationInProgress = errors.New("operation in progress")
	ErrInvalidTransition   = errors.New("invalid state transition")
)

// ErrorKind classifies a stage failure.
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindRuntime          ErrorKind = "runtime"
	KindCircuitAssertion ErrorKind = "circuit_assertion"
	KindProvingBackend   ErrorKind = "proving_backend"
	KindChain            ErrorKind = "chain"
	KindCancelled        ErrorKind = "cancelled"
)

// StageError is the error returned by every session operation.
type StageError struct {
	Stage State
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Retryable reports whether running the failed stage again may succeed.
func (e *StageError) Retryable() bool {
	switch e.Kind {
	case KindValidation, KindCircuitAssertion:
		return false
	default:
		return true
	}
}

// classify maps an error to its kind. Deadlines count as failures of the
// stage they interrupted, only explicit cancellation is KindCancelled.
func classify(stage State, err error) ErrorKind {
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrFileTooLarge),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrOperationInProgress),
		errors.Is(err, field.ErrUnreadableInput),
		errors.Is(err, field.ErrValueTooLong),
		errors.Is(err, field.ErrMalformedHex),
		errors.Is(err, field.ErrOutOfField),
		errors.Is(err, disclosure.ErrInvalidDisclosureClaim):
		return KindValidation
	case errors.Is(err, prover.ErrRuntimeInit),
		errors.Is(err, commit.ErrCircuitExecution):
		return KindRuntime
	case errors.Is(err, prover.ErrWitnessGeneration):
		return KindCircuitAssertion
	case errors.Is(err, prover.ErrProving),
		errors.Is(err, prover.ErrBackendBusy):
		return KindProvingBackend
	case errors.Is(err, ErrCommitmentNotFound),
		errors.Is(err, web3.ErrContractCall),
		errors.Is(err, web3.ErrNoSigner):
		return KindChain
	}
	switch stage {
	case StateProving:
		return KindProvingBackend
	case StateSubmitting:
		return KindChain
	default:
		return KindRuntime
	}
}
