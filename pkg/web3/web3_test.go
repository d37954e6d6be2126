package web3

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"zkpoe/pkg/disclosure"
	"zkpoe/pkg/field"
)

type rpcDataError struct {
	msg  string
	data any
}

func (e *rpcDataError) Error() string  { return e.msg }
func (e *rpcDataError) ErrorData() any { return e.data }

func selector(sig string) []byte { return crypto.Keccak256([]byte(sig))[:4] }

func testClaim(t *testing.T) disclosure.Claim {
	t.Helper()
	var ft [disclosure.FileTypeLen]byte
	copy(ft[:], "pdf")
	return disclosure.Claim{
		Flags:    disclosure.Flags{SizeRange: true, FileType: true},
		SizeMin:  1000,
		SizeMax:  2000,
		FileType: ft,
	}
}

func TestLookupNetwork(t *testing.T) {
	n, err := LookupNetwork("")
	require.NoError(t, err)
	require.Equal(t, uint64(421614), n.ChainID)
	require.Equal(t, "0x808101B5659608f58A8cEebd682D674B6d97B509", n.Contract.Hex())

	hash := common.HexToHash("0x01")
	require.Equal(t, "https://sepolia.arbiscan.io/tx/"+hash.Hex(), n.TxURL(hash))
	require.Empty(t, Network{}.TxURL(hash))

	_, err = LookupNetwork("mainnet")
	require.Error(t, err)
}

func TestDecodeRevert(t *testing.T) {
	cases := map[string]struct {
		err  error
		want error
	}{
		"invalid proof bytes": {
			&rpcDataError{"execution reverted", selector("InvalidProof()")},
			ErrInvalidProof,
		},
		"already exists hex": {
			&rpcDataError{"execution reverted", common.Bytes2Hex(selector("CommitmentAlreadyExists()"))},
			ErrCommitmentAlreadyExists,
		},
		"does not exist 0x hex": {
			&rpcDataError{"execution reverted", "0x" + common.Bytes2Hex(selector("CommitmentDoesNotExist()"))},
			ErrCommitmentDoesNotExist,
		},
		"name in message": {
			errors.New("execution reverted: EmptyBatch()"),
			ErrEmptyBatch,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := decodeRevert(tc.err)
			require.ErrorIs(t, err, ErrContractCall)
			require.ErrorIs(t, err, tc.want)
		})
	}

	raw := errors.New("insufficient funds for gas * price + value")
	err := decodeRevert(raw)
	require.ErrorIs(t, err, ErrContractCall)
	require.ErrorIs(t, err, raw)
	require.NotErrorIs(t, err, ErrInvalidProof)
	require.Contains(t, err.Error(), raw.Error())

	require.NoError(t, decodeRevert(nil))
}

func TestSubmitDisclosurePacking(t *testing.T) {
	claim := testClaim(t)
	commitment := field.Element(field.Uint64Word(42))
	proof := []byte{0xde, 0xad, 0xbe, 0xef}

	data, err := contractABI.Pack("submitDisclosure", disclosureArgs(proof, commitment, claim)...)
	require.NoError(t, err)
	require.Equal(t,
		selector("submitDisclosure(bytes,bytes32,bool,bool,bool,bytes32,bytes32,bytes32,bytes32[20])"),
		data[:4])

	args, err := contractABI.Methods["submitDisclosure"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, args, 9)
	require.Equal(t, proof, args[0])
	require.Equal(t, [32]byte(commitment), args[1])
	require.Equal(t, false, args[2])
	require.Equal(t, true, args[3])
	require.Equal(t, true, args[4])
	require.Equal(t, [32]byte{}, args[5])
	require.Equal(t, field.Uint64Word(1000), args[6])
	require.Equal(t, field.Uint64Word(2000), args[7])

	words, ok := args[8].([disclosure.FileTypeLen][32]byte)
	require.True(t, ok)
	require.Equal(t, "pdf", disclosure.DecodeFileType(words))
	require.Equal(t, byte('p'), words[0][31])
}

func TestSubmitProofPacking(t *testing.T) {
	data, err := contractABI.Pack("submitProof", []byte{1, 2, 3},
		[32]byte(field.Element(field.Uint64Word(7))), field.Uint64Word(1718000000))
	require.NoError(t, err)
	require.Equal(t, selector("submitProof(bytes,bytes32,bytes32)"), data[:4])
}

func TestDecodeDisclosure(t *testing.T) {
	claim := testClaim(t)
	data := disclosureData{
		Commitment:        field.Uint64Word(42),
		RevealSizeRange:   true,
		RevealFileType:    true,
		ClaimedDomainHash: field.Uint64Word(99), // hidden, must not leak into the record
		ClaimedSizeMin:    1000,
		ClaimedSizeMax:    2000,
		ClaimedFileType:   claim.FileTypeWords(),
		Timestamp:         big.NewInt(1718000000),
		Exists:            true,
	}
	outputs := contractABI.Methods["getDisclosure"].Outputs
	packed, err := outputs.Pack(data)
	require.NoError(t, err)
	out, err := outputs.Unpack(packed)
	require.NoError(t, err)

	rec, err := decodeDisclosure(out)
	require.NoError(t, err)
	require.Equal(t, field.Element(field.Uint64Word(42)), rec.Commitment)
	require.Equal(t, disclosure.Flags{SizeRange: true, FileType: true}, rec.Flags)
	require.True(t, rec.DomainHash.IsZero())
	require.Equal(t, uint64(1000), rec.SizeMin)
	require.Equal(t, uint64(2000), rec.SizeMax)
	require.Equal(t, "pdf", rec.FileType)
	require.Equal(t, uint64(1718000000), rec.Timestamp)

	data.Exists = false
	packed, err = outputs.Pack(data)
	require.NoError(t, err)
	out, err = outputs.Unpack(packed)
	require.NoError(t, err)
	_, err = decodeDisclosure(out)
	require.ErrorIs(t, err, ErrContractCall)
}

func TestDecodeExistence(t *testing.T) {
	outputs := contractABI.Methods["verifyExistence"].Outputs
	submitter := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	packed, err := outputs.Pack(true, submitter, big.NewInt(1718000000), big.NewInt(12345))
	require.NoError(t, err)
	out, err := outputs.Unpack(packed)
	require.NoError(t, err)

	e, err := decodeExistence(out)
	require.NoError(t, err)
	require.Equal(t, Existence{Exists: true, Submitter: submitter, Timestamp: 1718000000, BlockNumber: 12345}, e)
}

func TestDecodeDisclosureFlags(t *testing.T) {
	outputs := contractABI.Methods["getDisclosureFlags"].Outputs
	packed, err := outputs.Pack(true, false, true)
	require.NoError(t, err)
	out, err := outputs.Unpack(packed)
	require.NoError(t, err)

	flags, err := decodeDisclosureFlags(out)
	require.NoError(t, err)
	require.Equal(t, disclosure.Flags{EmailDomain: true, FileType: true}, flags)

	_, err = decodeDisclosureFlags(out[:2])
	require.ErrorIs(t, err, ErrContractCall)
	_, err = decodeDisclosureFlags([]any{true, "yes", false})
	require.ErrorIs(t, err, ErrContractCall)
}

func TestParseSubmittedEvents(t *testing.T) {
	n, err := LookupNetwork(DefaultNetwork)
	require.NoError(t, err)
	c := New(n, nil)

	submitter := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	commitment := field.Element(field.Uint64Word(42))

	ev := contractABI.Events["CommitmentSubmitted"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(1718000000))
	require.NoError(t, err)
	logs := []*types.Log{
		// same event from another contract is ignored
		{Address: common.HexToAddress("0x01"), Topics: []common.Hash{ev.ID}, Data: data},
		{
			Address: n.Contract,
			Topics:  []common.Hash{ev.ID, common.BytesToHash(submitter.Bytes()), common.Hash(commitment)},
			Data:    data,
		},
	}
	sub := &Submission{Commitment: commitment}
	require.NoError(t, c.parseCommitmentSubmitted(logs, sub))
	require.Equal(t, submitter, sub.Submitter)
	require.Equal(t, uint64(1718000000), sub.Timestamp)

	dev := contractABI.Events["DisclosureSubmitted"]
	data, err = dev.Inputs.NonIndexed().Pack(big.NewInt(3))
	require.NoError(t, err)
	logs = []*types.Log{{
		Address: n.Contract,
		Topics:  []common.Hash{dev.ID, common.BytesToHash(submitter.Bytes()), common.Hash(commitment)},
		Data:    data,
	}}
	sub = &Submission{Commitment: commitment}
	require.NoError(t, c.parseDisclosureSubmitted(logs, sub))
	require.Equal(t, uint64(3), sub.DisclosureIndex)

	other := &Submission{Commitment: field.Element(field.Uint64Word(1))}
	require.ErrorIs(t, c.parseDisclosureSubmitted(logs, other), ErrContractCall)
}

func TestSignerRequired(t *testing.T) {
	n, err := LookupNetwork(DefaultNetwork)
	require.NoError(t, err)
	c := New(n, nil)
	require.False(t, c.HasSigner())
	_, err = c.SubmitProof(t.Context(), nil, field.Element{}, field.Element{})
	require.ErrorIs(t, err, ErrNoSigner)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, c.SetAccountPrivateKey(common.Bytes2Hex(crypto.FromECDSA(key))))
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), c.AccountAddress())
}
