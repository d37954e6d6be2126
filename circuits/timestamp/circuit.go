package timestamp

import (
	"github.com/consensys/gnark/frontend"

	"zkpoe/circuits/commitment"
	"zkpoe/pkg/field"
)

// TimestampBits bounds the claimed unix timestamp.
const TimestampBits = 64

// Circuit proves that the prover knows the opening of a commitment and binds
// it to a timestamp:
//
//	Commitment = MiMC(document_hash, salt)
//	0 < Timestamp < 2^64
//
// Public inputs, in order: Commitment, Timestamp.
type Circuit struct {
	// Secret witness
	DocumentHash frontend.Variable
	Salt         frontend.Variable

	// Public inputs
	Commitment frontend.Variable `gnark:",public"`
	Timestamp  frontend.Variable `gnark:",public"`
}

func (c *Circuit) Define(api frontend.API) error {
	cCalc, err := commitment.Commit(api, c.DocumentHash, c.Salt)
	if err != nil {
		return err
	}
	api.AssertIsEqual(cCalc, c.Commitment)

	api.AssertIsDifferent(c.Timestamp, 0)
	api.ToBinary(c.Timestamp, TimestampBits)
	return nil
}

// Assignment builds a full witness assignment.
func Assignment(documentHash, salt field.Bytes31, c field.Element, ts uint64) *Circuit {
	return &Circuit{
		DocumentHash: documentHash.BigInt(),
		Salt:         salt.BigInt(),
		Commitment:   c.BigInt(),
		Timestamp:    ts,
	}
}
