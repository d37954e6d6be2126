package web3

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"zkpoe/pkg/disclosure"
	"zkpoe/pkg/field"
	"zkpoe/pkg/log"
)

// Existence is the on-chain record of a commitment.
type Existence struct {
	Exists      bool
	Submitter   common.Address
	Timestamp   uint64
	BlockNumber uint64
}

// Submission is the confirmed result of a transaction.
type Submission struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Submitter   common.Address
	Commitment  field.Element
	// Timestamp is the block time recorded by CommitmentSubmitted.
	Timestamp uint64
	// DisclosureIndex is set by DisclosureSubmitted.
	DisclosureIndex uint64
}

// DisclosureRecord is a stored disclosure. Only the fields selected by Flags
// carry data.
type DisclosureRecord struct {
	Index      uint64
	Commitment field.Element
	Flags      disclosure.Flags
	DomainHash field.Element
	SizeMin    uint64
	SizeMax    uint64
	FileType   string
	Timestamp  uint64
}

// disclosureData mirrors the DisclosureData tuple of getDisclosure.
type disclosureData struct {
	Commitment        [32]byte
	RevealEmailDomain bool
	RevealSizeRange   bool
	RevealFileType    bool
	ClaimedDomainHash [32]byte
	ClaimedSizeMin    uint64
	ClaimedSizeMax    uint64
	ClaimedFileType   [disclosure.FileTypeLen][32]byte
	Timestamp         *big.Int
	Exists            bool
}

type commitmentSubmittedEvent struct {
	Submitter  common.Address
	Commitment [32]byte
	Timestamp  *big.Int
}

type disclosureSubmittedEvent struct {
	Submitter       common.Address
	Commitment      [32]byte
	DisclosureIndex *big.Int
}

// SubmitProof records a timestamp proof and waits for its confirmation.
func (c *Contracts) SubmitProof(ctx context.Context, proof []byte, commitment, timestampField field.Element) (*Submission, error) {
	auth, err := c.authTransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.contract.Transact(auth, "submitProof", proof, [32]byte(commitment), [32]byte(timestampField))
	if err != nil {
		return nil, decodeRevert(fmt.Errorf("submitProof: %w", err))
	}
	log.Infow("proof submitted", "tx", tx.Hash().Hex(), "commitment", field.Short(commitment.Hex(), 8))
	receipt, err := c.waitReceipt(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	sub := newSubmission(receipt)
	sub.Commitment = commitment
	if err := c.parseCommitmentSubmitted(receipt.Logs, sub); err != nil {
		return nil, err
	}
	c.existing.Add(common.Hash(commitment), Existence{
		Exists:      true,
		Submitter:   sub.Submitter,
		Timestamp:   sub.Timestamp,
		BlockNumber: sub.BlockNumber,
	})
	return sub, nil
}

// SubmitDisclosure records a disclosure proof and waits for its confirmation.
func (c *Contracts) SubmitDisclosure(ctx context.Context, proof []byte, commitment field.Element, claim disclosure.Claim) (*Submission, error) {
	auth, err := c.authTransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.contract.Transact(auth, "submitDisclosure", disclosureArgs(proof, commitment, claim)...)
	if err != nil {
		return nil, decodeRevert(fmt.Errorf("submitDisclosure: %w", err))
	}
	log.Infow("disclosure submitted", "tx", tx.Hash().Hex(), "commitment", field.Short(commitment.Hex(), 8))
	receipt, err := c.waitReceipt(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	sub := newSubmission(receipt)
	sub.Commitment = commitment
	if err := c.parseDisclosureSubmitted(receipt.Logs, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// disclosureArgs orders the submitDisclosure arguments.
func disclosureArgs(proof []byte, commitment field.Element, claim disclosure.Claim) []any {
	sizeMin, sizeMax := claim.SizeWords()
	return []any{
		proof,
		[32]byte(commitment),
		claim.Flags.EmailDomain,
		claim.Flags.SizeRange,
		claim.Flags.FileType,
		[32]byte(claim.DomainHash),
		sizeMin,
		sizeMax,
		claim.FileTypeWords(),
	}
}

func newSubmission(r *types.Receipt) *Submission {
	sub := &Submission{TxHash: r.TxHash, GasUsed: r.GasUsed}
	if r.BlockNumber != nil {
		sub.BlockNumber = r.BlockNumber.Uint64()
	}
	return sub
}

func (c *Contracts) parseCommitmentSubmitted(logs []*types.Log, sub *Submission) error {
	id := contractABI.Events["CommitmentSubmitted"].ID
	for _, l := range logs {
		if len(l.Topics) == 0 || l.Topics[0] != id || l.Address != c.Network.Contract {
			continue
		}
		var ev commitmentSubmittedEvent
		if err := c.contract.UnpackLog(&ev, "CommitmentSubmitted", *l); err != nil {
			return fmt.Errorf("%w: CommitmentSubmitted: %w", ErrContractCall, err)
		}
		if field.Element(ev.Commitment) != sub.Commitment {
			continue
		}
		sub.Submitter = ev.Submitter
		sub.Timestamp = ev.Timestamp.Uint64()
		return nil
	}
	return fmt.Errorf("%w: no CommitmentSubmitted event in tx %s", ErrContractCall, sub.TxHash.Hex())
}

func (c *Contracts) parseDisclosureSubmitted(logs []*types.Log, sub *Submission) error {
	id := contractABI.Events["DisclosureSubmitted"].ID
	for _, l := range logs {
		if len(l.Topics) == 0 || l.Topics[0] != id || l.Address != c.Network.Contract {
			continue
		}
		var ev disclosureSubmittedEvent
		if err := c.contract.UnpackLog(&ev, "DisclosureSubmitted", *l); err != nil {
			return fmt.Errorf("%w: DisclosureSubmitted: %w", ErrContractCall, err)
		}
		if field.Element(ev.Commitment) != sub.Commitment {
			continue
		}
		sub.Submitter = ev.Submitter
		sub.DisclosureIndex = ev.DisclosureIndex.Uint64()
		return nil
	}
	return fmt.Errorf("%w: no DisclosureSubmitted event in tx %s", ErrContractCall, sub.TxHash.Hex())
}

// VerifyExistence reads the record of a commitment. Records that exist are
// cached.
func (c *Contracts) VerifyExistence(ctx context.Context, commitment field.Element) (Existence, error) {
	key := common.Hash(commitment)
	if e, ok := c.existing.Get(key); ok {
		return e, nil
	}
	out, err := c.call(ctx, "verifyExistence", [32]byte(commitment))
	if err != nil {
		return Existence{}, err
	}
	e, err := decodeExistence(out)
	if err != nil {
		return Existence{}, err
	}
	if e.Exists {
		c.existing.Add(key, e)
	}
	return e, nil
}

func decodeExistence(out []any) (Existence, error) {
	if len(out) != 4 {
		return Existence{}, fmt.Errorf("%w: verifyExistence returned %d values", ErrContractCall, len(out))
	}
	exists, ok1 := out[0].(bool)
	submitter, ok2 := out[1].(common.Address)
	ts, ok3 := out[2].(*big.Int)
	block, ok4 := out[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Existence{}, fmt.Errorf("%w: unexpected verifyExistence output %v", ErrContractCall, out)
	}
	return Existence{Exists: exists, Submitter: submitter, Timestamp: ts.Uint64(), BlockNumber: block.Uint64()}, nil
}

// UserCommitments lists the commitments submitted by user, or by the signer
// when user is the zero address.
func (c *Contracts) UserCommitments(ctx context.Context, user common.Address) ([]field.Element, error) {
	if user == (common.Address{}) {
		if c.signer == nil {
			return nil, ErrNoSigner
		}
		user = c.AccountAddress()
	}
	out, err := c.call(ctx, "getUserCommitments", user)
	if err != nil {
		return nil, err
	}
	raw, ok := out[0].([][32]byte)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected getUserCommitments output %T", ErrContractCall, out[0])
	}
	commitments := make([]field.Element, len(raw))
	for i, r := range raw {
		commitments[i] = field.Element(r)
	}
	return commitments, nil
}

// DisclosureCount returns the number of disclosures of a commitment.
func (c *Contracts) DisclosureCount(ctx context.Context, commitment field.Element) (uint64, error) {
	out, err := c.call(ctx, "getDisclosureCount", [32]byte(commitment))
	if err != nil {
		return 0, err
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected getDisclosureCount output %T", ErrContractCall, out[0])
	}
	return n.Uint64(), nil
}

// DisclosureFlags returns what a stored disclosure reveals.
func (c *Contracts) DisclosureFlags(ctx context.Context, commitment field.Element, index uint64) (disclosure.Flags, error) {
	out, err := c.call(ctx, "getDisclosureFlags", [32]byte(commitment), new(big.Int).SetUint64(index))
	if err != nil {
		return disclosure.Flags{}, err
	}
	return decodeDisclosureFlags(out)
}

func decodeDisclosureFlags(out []any) (disclosure.Flags, error) {
	if len(out) != 3 {
		return disclosure.Flags{}, fmt.Errorf("%w: getDisclosureFlags returned %d values", ErrContractCall, len(out))
	}
	var flags [3]bool
	for i, v := range out {
		b, ok := v.(bool)
		if !ok {
			return disclosure.Flags{}, fmt.Errorf("%w: unexpected getDisclosureFlags output %T", ErrContractCall, v)
		}
		flags[i] = b
	}
	return disclosure.Flags{EmailDomain: flags[0], SizeRange: flags[1], FileType: flags[2]}, nil
}

// Disclosure reads one stored disclosure.
func (c *Contracts) Disclosure(ctx context.Context, commitment field.Element, index uint64) (*DisclosureRecord, error) {
	out, err := c.call(ctx, "getDisclosure", [32]byte(commitment), new(big.Int).SetUint64(index))
	if err != nil {
		return nil, err
	}
	rec, err := decodeDisclosure(out)
	if err != nil {
		return nil, err
	}
	rec.Index = index
	return rec, nil
}

// Disclosures reads every disclosure of a commitment, oldest first.
func (c *Contracts) Disclosures(ctx context.Context, commitment field.Element) ([]*DisclosureRecord, error) {
	n, err := c.DisclosureCount(ctx, commitment)
	if err != nil {
		return nil, err
	}
	records := make([]*DisclosureRecord, 0, n)
	for i := uint64(0); i < n; i++ {
		rec, err := c.Disclosure(ctx, commitment, i)
		if err != nil {
			return nil, fmt.Errorf("disclosure %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeDisclosure(out []any) (*DisclosureRecord, error) {
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: getDisclosure returned %d values", ErrContractCall, len(out))
	}
	d, ok := abi.ConvertType(out[0], new(disclosureData)).(*disclosureData)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected getDisclosure output %T", ErrContractCall, out[0])
	}
	if !d.Exists {
		return nil, fmt.Errorf("%w: disclosure not found", ErrContractCall)
	}
	rec := &DisclosureRecord{
		Commitment: field.Element(d.Commitment),
		Flags: disclosure.Flags{
			EmailDomain: d.RevealEmailDomain,
			SizeRange:   d.RevealSizeRange,
			FileType:    d.RevealFileType,
		},
	}
	if d.Timestamp != nil {
		rec.Timestamp = d.Timestamp.Uint64()
	}
	if rec.Flags.EmailDomain {
		rec.DomainHash = field.Element(d.ClaimedDomainHash)
	}
	if rec.Flags.SizeRange {
		rec.SizeMin, rec.SizeMax = d.ClaimedSizeMin, d.ClaimedSizeMax
	}
	if rec.Flags.FileType {
		rec.FileType = disclosure.DecodeFileType(d.ClaimedFileType)
	}
	return rec, nil
}
