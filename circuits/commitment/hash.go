package commitment

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"zkpoe/pkg/field"
)

// Hash computes Commitment = MiMC(document_hash, salt) natively.
// This must match what the circuit computes.
func Hash(documentHash, salt field.Bytes31) field.Element {
	var docFe, saltFe fr.Element
	docFe.SetBytes(documentHash[:])
	saltFe.SetBytes(salt[:])

	h := mimc.NewMiMC()
	// 31 byte inputs are always canonical, Write cannot fail
	_, _ = h.Write(docFe.Marshal())
	_, _ = h.Write(saltFe.Marshal())

	var out field.Element
	copy(out[:], h.Sum(nil))
	return out
}

// Assignment returns a full witness assignment for the helper circuit.
func Assignment(documentHash, salt field.Bytes31, commitment field.Element) *Circuit {
	return &Circuit{
		DocumentHash: documentHash.BigInt(),
		Salt:         salt.BigInt(),
		Commitment:   commitment.BigInt(),
	}
}
