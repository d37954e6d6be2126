package zkruntime

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/consensys/gnark/frontend"
	"github.com/stretchr/testify/require"

	"zkpoe/circuits/commitment"
	"zkpoe/circuits/disclosure"
	"zkpoe/circuits/timestamp"
	"zkpoe/pkg/field"
)

func testValues() (field.Bytes31, field.Bytes31, field.Element) {
	doc := field.ToFieldElement(field.DigestBytes([]byte("runtime test document")))
	var salt field.Bytes31
	salt[0], salt[30] = 7, 9
	return doc, salt, commitment.Hash(doc, salt)
}

func TestUnknownScheme(t *testing.T) {
	_, err := New(Config{Scheme: "stark"})
	require.ErrorIs(t, err, ErrUnknownScheme)
}

func TestCircuitBeforeInit(t *testing.T) {
	rt, err := New(Config{})
	require.NoError(t, err)
	_, err = rt.Circuit(CommitmentCircuit)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestPublicInputCounts(t *testing.T) {
	doc, salt, c := testValues()
	assignments := map[CircuitID]frontend.Circuit{
		CommitmentCircuit: commitment.Assignment(doc, salt, c),
		TimestampCircuit:  timestamp.Assignment(doc, salt, c, 1),
		DisclosureCircuit: (&disclosure.Inputs{DocumentHash: doc, Salt: salt, Commitment: c}).Assignment(),
	}
	for id, a := range assignments {
		full, err := Witness(a)
		require.NoError(t, err)
		pub, err := PublicInputs(full)
		require.NoError(t, err)
		require.Len(t, pub, NbPublicInputs(id), string(id))
		require.Equal(t, c, pub[0], "commitment is the first public input of %s", id)
	}
}

func TestEnsureConcurrent(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a circuit setup")
	}
	dir := t.TempDir()
	rt, err := New(Config{ArtifactsDir: dir, Only: []CircuitID{CommitmentCircuit, TimestampCircuit}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- rt.Ensure(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.True(t, rt.Ready())

	first, err := rt.Circuit(TimestampCircuit)
	require.NoError(t, err)
	require.NotZero(t, first.Constraints)

	// a second runtime reads the stored keys instead of running a new setup
	rt2, err := New(Config{ArtifactsDir: dir, Only: []CircuitID{CommitmentCircuit, TimestampCircuit}})
	require.NoError(t, err)
	require.NoError(t, rt2.Ensure(context.Background()))
	second, err := rt2.Circuit(TimestampCircuit)
	require.NoError(t, err)
	require.Equal(t, first.VKHash, second.VKHash)

	var sol bytes.Buffer
	require.NoError(t, rt2.ExportSolidity(TimestampCircuit, &sol))
	require.Contains(t, sol.String(), "pragma solidity")
}

func TestEnsureCancelledCaller(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a circuit setup")
	}
	rt, err := New(Config{Only: []CircuitID{CommitmentCircuit}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, rt.Ensure(ctx), context.Canceled)

	// the in-flight initialization is shared with the next caller
	require.NoError(t, rt.Ensure(context.Background()))
	require.True(t, rt.Ready())
}

func TestProveAndVerify(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a circuit setup")
	}
	for _, scheme := range []string{SchemeGroth16, SchemePlonk} {
		t.Run(scheme, func(t *testing.T) {
			rt, err := New(Config{Scheme: scheme, Only: []CircuitID{TimestampCircuit}})
			require.NoError(t, err)
			require.NoError(t, rt.Ensure(context.Background()))
			c, err := rt.Circuit(TimestampCircuit)
			require.NoError(t, err)

			doc, salt, cm := testValues()
			w, err := Witness(timestamp.Assignment(doc, salt, cm, 1718000000))
			require.NoError(t, err)
			require.NoError(t, c.CCS.IsSolved(w))

			proof, err := rt.Scheme().Prove(c.CCS, c.Keys, w)
			require.NoError(t, err)
			require.NotEmpty(t, proof.Solidity)

			pub, err := PublicInputs(w)
			require.NoError(t, err)
			require.NoError(t, rt.Verify(TimestampCircuit, proof.Native, pub))

			pub[1] = field.Element(field.Uint64Word(1718000001))
			require.Error(t, rt.Verify(TimestampCircuit, proof.Native, pub))
		})
	}
}
