package prover

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"zkpoe/circuits/commitment"
	circuit "zkpoe/circuits/disclosure"
	"zkpoe/pkg/commit"
	"zkpoe/pkg/disclosure"
	"zkpoe/pkg/field"
	"zkpoe/pkg/zkruntime"
)

func newGenerator(t *testing.T, ids ...zkruntime.CircuitID) *Generator {
	t.Helper()
	rt, err := zkruntime.New(zkruntime.Config{Only: ids})
	require.NoError(t, err)
	return New(rt, commit.New(rt))
}

func basicParams(t *testing.T) BasicParams {
	t.Helper()
	doc := field.ToFieldElement(field.DigestBytes([]byte("prover test document")))
	salt, err := field.RandomSalt()
	require.NoError(t, err)
	return BasicParams{
		Document:   doc,
		Salt:       salt,
		Commitment: commitment.Hash(doc, salt),
		Timestamp:  uint64(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC).Unix()),
	}
}

func TestBackendBusy(t *testing.T) {
	g := newGenerator(t, zkruntime.TimestampCircuit)
	g.mu.Lock()
	_, err := g.GenerateBasicProof(context.Background(), BasicParams{}, nil)
	require.ErrorIs(t, err, ErrBackendBusy)
	g.mu.Unlock()
}

func TestReportDoesNotBlock(t *testing.T) {
	progress := make(chan Stage)
	report(progress, StageDone)
	report(nil, StageDone)
}

func TestBasicProof(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a circuit setup")
	}
	g := newGenerator(t, zkruntime.TimestampCircuit)
	p := basicParams(t)

	progress := make(chan Stage, len(Stages))
	a, err := g.GenerateBasicProof(context.Background(), p, progress)
	require.NoError(t, err)
	close(progress)
	var got []Stage
	for s := range progress {
		got = append(got, s)
	}
	require.Equal(t, Stages, got)

	require.Equal(t, zkruntime.TimestampCircuit, a.Circuit)
	require.NotEmpty(t, a.Proof)
	require.Len(t, a.PublicInputs, 2)
	require.Equal(t, p.Commitment, a.Commitment())
	ts, err := field.WordUint64(a.PublicInputs[1])
	require.NoError(t, err)
	require.Equal(t, p.Timestamp, ts)
	require.NoError(t, g.Verify(a))

	a.PublicInputs[1] = field.Element(field.Uint64Word(p.Timestamp + 1))
	require.Error(t, g.Verify(a))

	t.Run("wrong commitment", func(t *testing.T) {
		bad := p
		bad.Commitment = field.Element(field.Uint64Word(1))
		_, err := g.GenerateBasicProof(context.Background(), bad, nil)
		require.ErrorIs(t, err, ErrWitnessGeneration)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := g.GenerateBasicProof(ctx, p, nil)
		require.ErrorIs(t, err, context.Canceled)

		// the backend was released
		_, err = g.GenerateBasicProof(context.Background(), p, nil)
		require.NoError(t, err)
	})
}

func TestDisclosureProof(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a circuit setup")
	}
	g := newGenerator(t, zkruntime.DisclosureCircuit)
	hasher := commit.New(nil)

	doc := field.ToFieldElement(field.DigestBytes([]byte("quarterly report")))
	salt, err := field.RandomSalt()
	require.NoError(t, err)
	values := disclosure.Values{
		Email:    "alice@example.com",
		FileSize: 1500,
		FileType: "pdf",
		SizeMin:  1000,
		SizeMax:  2000,
	}
	claim, err := disclosure.EncodeClaim(hasher, disclosure.Flags{EmailDomain: true, SizeRange: true}, values)
	require.NoError(t, err)

	p := DisclosureParams{
		Document:   doc,
		Salt:       salt,
		Commitment: commitment.Hash(doc, salt),
		Email:      values.Email,
		FileSize:   values.FileSize,
		FileType:   values.FileType,
		Claim:      claim,
	}
	a, err := g.GenerateDisclosureProof(context.Background(), p, nil)
	require.NoError(t, err)
	require.Len(t, a.PublicInputs, zkruntime.NbPublicInputs(zkruntime.DisclosureCircuit))
	require.Equal(t, claim.DomainHash, a.PublicInputs[4])
	require.NoError(t, g.Verify(a))

	// a claim that bypassed the encoder is rejected by the circuit
	p.Claim.SizeMin, p.Claim.SizeMax = 2000, 3000
	_, err = g.GenerateDisclosureProof(context.Background(), p, nil)
	require.ErrorIs(t, err, ErrWitnessGeneration)

	p.Claim = claim
	p.Email = "alice@" + string(make([]byte, circuit.EmailLen))
	_, err = g.GenerateDisclosureProof(context.Background(), p, nil)
	require.ErrorIs(t, err, ErrWitnessGeneration)
	require.ErrorIs(t, err, field.ErrValueTooLong)
}
