package timestamp

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/test"

	"zkpoe/circuits/commitment"
	"zkpoe/pkg/field"
)

func inputs() (field.Bytes31, field.Bytes31, field.Element) {
	doc := field.ToFieldElement(field.DigestBytes([]byte("contract draft v3")))
	var salt field.Bytes31
	for i := range salt {
		salt[i] = byte(200 - i)
	}
	return doc, salt, commitment.Hash(doc, salt)
}

func TestValidTimestampProof(t *testing.T) {
	assert := test.NewAssert(t)
	doc, salt, c := inputs()

	assert.ProverSucceeded(&Circuit{}, Assignment(doc, salt, c, 1718000000),
		test.WithCurves(ecc.BN254), test.WithBackends(backend.GROTH16, backend.PLONK))
}

func TestTimestampRejected(t *testing.T) {
	assert := test.NewAssert(t)
	doc, salt, c := inputs()

	assert.Run(func(assert *test.Assert) {
		assert.ProverFailed(&Circuit{}, Assignment(doc, salt, c, 0),
			test.WithCurves(ecc.BN254), test.WithBackends(backend.GROTH16))
	}, "zero_timestamp")

	assert.Run(func(assert *test.Assert) {
		other := c
		other[31] ^= 1
		assert.ProverFailed(&Circuit{}, Assignment(doc, salt, other, 1718000000),
			test.WithCurves(ecc.BN254), test.WithBackends(backend.GROTH16))
	}, "wrong_commitment")

	assert.Run(func(assert *test.Assert) {
		w := Assignment(doc, salt, c, 1)
		w.Timestamp = "18446744073709551616" // 2^64
		assert.ProverFailed(&Circuit{}, w,
			test.WithCurves(ecc.BN254), test.WithBackends(backend.GROTH16))
	}, "timestamp_over_64_bits")
}
