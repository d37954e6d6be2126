package prover

import (
	"errors"
	"time"

	"zkpoe/pkg/field"
	"zkpoe/pkg/zkruntime"
)

// Stage is a human readable progress label.
type Stage string

const (
	StageInitRuntime Stage = "Initializing circuit runtime..."
	StageWitness     Stage = "Generating witness..."
	StageBackend     Stage = "Initializing proving backend..."
	StageProving     Stage = "Generating proof..."
	StageDone        Stage = "Proof generated!"
)

// Stages lists the progress labels in the order they are reported.
var Stages = []Stage{StageInitRuntime, StageWitness, StageBackend, StageProving, StageDone}

var (
	ErrRuntimeInit       = errors.New("circuit runtime initialization failed")
	ErrWitnessGeneration = errors.New("witness generation failed")
	ErrProving           = errors.New("proof generation failed")
	ErrBackendBusy       = errors.New("proving backend busy")
)

// Artifact is a generated proof with everything the contract call needs.
type Artifact struct {
	Circuit      zkruntime.CircuitID `cbor:"circuit"`
	Scheme       string              `cbor:"scheme"`
	Proof        []byte              `cbor:"proof"`
	Native       []byte              `cbor:"native"`
	PublicInputs []field.Element     `cbor:"publicInputs"`
	ProvingTime  time.Duration       `cbor:"provingTime"`
	Constraints  int                 `cbor:"constraints"`
}

// Commitment returns the first public input, the commitment the proof is
// bound to.
func (a *Artifact) Commitment() field.Element {
	if a == nil || len(a.PublicInputs) == 0 {
		return field.Element{}
	}
	return a.PublicInputs[0]
}

// report sends a stage without blocking. A slow or absent reader misses
// labels but never stalls the prover.
func report(progress chan<- Stage, s Stage) {
	if progress == nil {
		return
	}
	select {
	case progress <- s:
	default:
	}
}
