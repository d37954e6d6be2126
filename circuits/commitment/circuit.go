package commitment

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// InputBits bounds the document hash and the salt: both are 31 byte values.
const InputBits = 248

// Circuit proves knowledge of a document hash and salt such that:
// Commitment = MiMC(document_hash, salt)
//
// The commitment is the only public value. It is the helper circuit used to
// derive commitments client side; the timestamp and disclosure circuits embed
// the same gadget.
type Circuit struct {
	// Secret witness
	DocumentHash frontend.Variable
	Salt         frontend.Variable

	// Public input
	Commitment frontend.Variable `gnark:",public"`
}

func (c *Circuit) Define(api frontend.API) error {
	cCalc, err := Commit(api, c.DocumentHash, c.Salt)
	if err != nil {
		return err
	}
	api.AssertIsEqual(cCalc, c.Commitment)
	return nil
}

// Commit returns MiMC(documentHash, salt) after bounding both inputs to 248
// bits, so that no two 31 byte inputs alias the same field element.
func Commit(api frontend.API, documentHash, salt frontend.Variable) (frontend.Variable, error) {
	api.ToBinary(documentHash, InputBits)
	api.ToBinary(salt, InputBits)

	h, err := mimc.NewMiMC(api)
	if err != nil {
		return nil, err
	}
	h.Write(documentHash, salt)
	return h.Sum(), nil
}
