package zkruntime

import (
	"bytes"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/backend/plonk"
	plonk_bn254 "github.com/consensys/gnark/backend/plonk/bn254"
	"github.com/consensys/gnark/backend/solidity"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/frontend/cs/scs"
	"github.com/consensys/gnark/test/unsafekzg"
)

const (
	SchemeGroth16 = "groth16"
	SchemePlonk   = "plonk"
)

// Proof holds one proof in both encodings: the EVM calldata form expected by
// the on-chain verifier and gnark's own binary serialization.
type Proof struct {
	Solidity []byte
	Native   []byte
}

// Keys are the proving and verifying keys of one circuit.
type Keys interface {
	WriteTo(pk, vk io.Writer) error
	VerifyingKeyBytes() ([]byte, error)
	ExportSolidity(w io.Writer) error
	NbPublicWitness() int
}

// Scheme abstracts the proving system. Both implementations prove and verify
// with the keccak transcript of the Solidity verifier.
type Scheme interface {
	Name() string
	Backend() backend.ID
	Builder() frontend.NewBuilder
	Setup(ccs constraint.ConstraintSystem) (Keys, error)
	ReadKeys(pk, vk io.Reader) (Keys, error)
	Prove(ccs constraint.ConstraintSystem, keys Keys, w witness.Witness) (*Proof, error)
	Verify(keys Keys, native []byte, public witness.Witness) error
}

// NewScheme returns the scheme registered under name.
func NewScheme(name string) (Scheme, error) {
	switch name {
	case SchemeGroth16, "":
		return groth16Scheme{}, nil
	case SchemePlonk:
		return plonkScheme{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
}

type groth16Keys struct {
	pk groth16.ProvingKey
	vk groth16.VerifyingKey
}

func (k *groth16Keys) WriteTo(pk, vk io.Writer) error {
	if _, err := k.pk.WriteTo(pk); err != nil {
		return fmt.Errorf("failed to write proving key: %w", err)
	}
	if _, err := k.vk.WriteTo(vk); err != nil {
		return fmt.Errorf("failed to write verifying key: %w", err)
	}
	return nil
}

func (k *groth16Keys) VerifyingKeyBytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := k.vk.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (k *groth16Keys) ExportSolidity(w io.Writer) error { return k.vk.ExportSolidity(w) }

func (k *groth16Keys) NbPublicWitness() int { return k.vk.NbPublicWitness() }

type groth16Scheme struct{}

func (groth16Scheme) Name() string                 { return SchemeGroth16 }
func (groth16Scheme) Backend() backend.ID          { return backend.GROTH16 }
func (groth16Scheme) Builder() frontend.NewBuilder { return r1cs.NewBuilder }

func (groth16Scheme) Setup(ccs constraint.ConstraintSystem) (Keys, error) {
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("groth16 setup failed: %w", err)
	}
	return &groth16Keys{pk: pk, vk: vk}, nil
}

func (groth16Scheme) ReadKeys(pkr, vkr io.Reader) (Keys, error) {
	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(pkr); err != nil {
		return nil, fmt.Errorf("failed to read proving key: %w", err)
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(vkr); err != nil {
		return nil, fmt.Errorf("failed to read verifying key: %w", err)
	}
	return &groth16Keys{pk: pk, vk: vk}, nil
}

func (groth16Scheme) Prove(ccs constraint.ConstraintSystem, keys Keys, w witness.Witness) (*Proof, error) {
	k, ok := keys.(*groth16Keys)
	if !ok {
		return nil, fmt.Errorf("invalid groth16 key type %T", keys)
	}
	proof, err := groth16.Prove(ccs, k.pk, w, solidity.WithProverTargetSolidityVerifier(backend.GROTH16))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("proof serialization failed: %w", err)
	}
	bn, ok := proof.(*groth16_bn254.Proof)
	if !ok {
		return nil, fmt.Errorf("unexpected groth16 proof type %T", proof)
	}
	return &Proof{Solidity: bn.MarshalSolidity(), Native: buf.Bytes()}, nil
}

func (groth16Scheme) Verify(keys Keys, native []byte, public witness.Witness) error {
	k, ok := keys.(*groth16Keys)
	if !ok {
		return fmt.Errorf("invalid groth16 key type %T", keys)
	}
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(native)); err != nil {
		return fmt.Errorf("proof deserialization failed: %w", err)
	}
	return groth16.Verify(proof, k.vk, public, solidity.WithVerifierTargetSolidityVerifier(backend.GROTH16))
}

type plonkKeys struct {
	pk plonk.ProvingKey
	vk plonk.VerifyingKey
}

func (k *plonkKeys) WriteTo(pk, vk io.Writer) error {
	if _, err := k.pk.WriteTo(pk); err != nil {
		return fmt.Errorf("failed to write proving key: %w", err)
	}
	if _, err := k.vk.WriteTo(vk); err != nil {
		return fmt.Errorf("failed to write verifying key: %w", err)
	}
	return nil
}

func (k *plonkKeys) VerifyingKeyBytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := k.vk.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (k *plonkKeys) ExportSolidity(w io.Writer) error { return k.vk.ExportSolidity(w) }

func (k *plonkKeys) NbPublicWitness() int { return k.vk.NbPublicWitness() }

// plonkScheme uses an SRS generated locally by unsafekzg. It is meant for
// development networks; production deployments ship keys from a ceremony in
// the artifacts directory.
type plonkScheme struct{}

func (plonkScheme) Name() string                 { return SchemePlonk }
func (plonkScheme) Backend() backend.ID          { return backend.PLONK }
func (plonkScheme) Builder() frontend.NewBuilder { return scs.NewBuilder }

func (plonkScheme) Setup(ccs constraint.ConstraintSystem) (Keys, error) {
	srs, srsLagrange, err := unsafekzg.NewSRS(ccs)
	if err != nil {
		return nil, fmt.Errorf("kzg srs generation failed: %w", err)
	}
	pk, vk, err := plonk.Setup(ccs, srs, srsLagrange)
	if err != nil {
		return nil, fmt.Errorf("plonk setup failed: %w", err)
	}
	return &plonkKeys{pk: pk, vk: vk}, nil
}

func (plonkScheme) ReadKeys(pkr, vkr io.Reader) (Keys, error) {
	pk := plonk.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(pkr); err != nil {
		return nil, fmt.Errorf("failed to read proving key: %w", err)
	}
	vk := plonk.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(vkr); err != nil {
		return nil, fmt.Errorf("failed to read verifying key: %w", err)
	}
	return &plonkKeys{pk: pk, vk: vk}, nil
}

func (plonkScheme) Prove(ccs constraint.ConstraintSystem, keys Keys, w witness.Witness) (*Proof, error) {
	k, ok := keys.(*plonkKeys)
	if !ok {
		return nil, fmt.Errorf("invalid plonk key type %T", keys)
	}
	proof, err := plonk.Prove(ccs, k.pk, w, solidity.WithProverTargetSolidityVerifier(backend.PLONK))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("proof serialization failed: %w", err)
	}
	bn, ok := proof.(*plonk_bn254.Proof)
	if !ok {
		return nil, fmt.Errorf("unexpected plonk proof type %T", proof)
	}
	return &Proof{Solidity: bn.MarshalSolidity(), Native: buf.Bytes()}, nil
}

func (plonkScheme) Verify(keys Keys, native []byte, public witness.Witness) error {
	k, ok := keys.(*plonkKeys)
	if !ok {
		return fmt.Errorf("invalid plonk key type %T", keys)
	}
	proof := plonk.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(native)); err != nil {
		return fmt.Errorf("proof deserialization failed: %w", err)
	}
	return plonk.Verify(proof, k.vk, public, solidity.WithVerifierTargetSolidityVerifier(backend.PLONK))
}
