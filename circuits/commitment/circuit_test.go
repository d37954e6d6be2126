package commitment

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/test"

	"zkpoe/pkg/field"
)

func testInputs(t *testing.T) (field.Bytes31, field.Bytes31) {
	t.Helper()
	doc := field.ToFieldElement(field.DigestBytes([]byte("hello, proof of existence")))
	var salt field.Bytes31
	for i := range salt {
		salt[i] = byte(i + 1)
	}
	return doc, salt
}

// TestCircuitCompiles checks that the helper circuit compiles and reports its size
func TestCircuitCompiles(t *testing.T) {
	var c Circuit
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &c)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	t.Logf("Commitment circuit compiled with %d constraints", ccs.GetNbConstraints())
}

// TestNativeMatchesCircuit checks the native MiMC against the in-circuit one
func TestNativeMatchesCircuit(t *testing.T) {
	assert := test.NewAssert(t)
	doc, salt := testInputs(t)
	c := Hash(doc, salt)
	t.Logf("commitment: %s", c.Hex())

	assert.ProverSucceeded(&Circuit{}, Assignment(doc, salt, c),
		test.WithCurves(ecc.BN254), test.WithBackends(backend.GROTH16))
}

// TestWrongSaltFails checks that a different salt cannot open the commitment
func TestWrongSaltFails(t *testing.T) {
	assert := test.NewAssert(t)
	doc, salt := testInputs(t)
	c := Hash(doc, salt)

	wrong := salt
	wrong[0] ^= 0xff
	assert.ProverFailed(&Circuit{}, Assignment(doc, wrong, c),
		test.WithCurves(ecc.BN254), test.WithBackends(backend.GROTH16))
}

// TestHashDeterministic checks that identical inputs give identical commitments
func TestHashDeterministic(t *testing.T) {
	doc, salt := testInputs(t)
	a := Hash(doc, salt)
	b := Hash(doc, salt)
	if a != b {
		t.Fatalf("commitment not deterministic: %s != %s", a.Hex(), b.Hex())
	}
	other := salt
	other[30] ^= 1
	if Hash(doc, other) == a {
		t.Fatal("different salts produced the same commitment")
	}
}
