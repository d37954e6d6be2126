// Package receipt issues signed proofs of submission. A receipt restates the
// public facts of a confirmed submission and is signed with a BIP-340
// Schnorr key held by the client, so it can be checked offline and then
// against the chain.
package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/ethereum/go-ethereum/common"

	"zkpoe/pkg/disclosure"
	"zkpoe/pkg/field"
	"zkpoe/pkg/pipeline"
	"zkpoe/pkg/web3"
)

// Version of the receipt body.
const Version = 1

var ErrInvalidReceipt = errors.New("invalid receipt")

// Revealed lists what a disclosure receipt reveals. Hidden properties are
// absent.
type Revealed struct {
	DomainHash string  `json:"domainHash,omitempty"`
	SizeMin    *uint64 `json:"sizeMin,omitempty"`
	SizeMax    *uint64 `json:"sizeMax,omitempty"`
	FileType   string  `json:"fileType,omitempty"`
}

// Body is the signed content.
type Body struct {
	Version         int       `json:"version"`
	Network         string    `json:"network"`
	ChainID         uint64    `json:"chainId"`
	Contract        string    `json:"contract"`
	TxHash          string    `json:"txHash"`
	TxURL           string    `json:"txUrl,omitempty"`
	Submitter       string    `json:"submitter,omitempty"`
	Mode            string    `json:"mode"`
	Circuit         string    `json:"circuit"`
	Scheme          string    `json:"scheme"`
	Commitment      string    `json:"commitment"`
	PublicInputs    []string  `json:"publicInputs"`
	Timestamp       uint64    `json:"timestamp,omitempty"`
	DisclosureIndex *uint64   `json:"disclosureIndex,omitempty"`
	Revealed        *Revealed `json:"revealed,omitempty"`
}

// Receipt is a signed body.
type Receipt struct {
	Body      Body   `json:"receipt"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

// FromSnapshot builds the body of a submitted session.
func FromSnapshot(snap pipeline.Snapshot, network web3.Network) (Body, error) {
	if snap.State != pipeline.StateSubmitted || snap.Submission == nil || snap.Artifact == nil {
		return Body{}, fmt.Errorf("%w: session %s is not submitted", ErrInvalidReceipt, snap.ID)
	}
	sub, a := snap.Submission, snap.Artifact
	b := Body{
		Version:    Version,
		Network:    network.Name,
		ChainID:    network.ChainID,
		Contract:   network.Contract.Hex(),
		TxHash:     sub.TxHash.Hex(),
		TxURL:      network.TxURL(sub.TxHash),
		Mode:       string(snap.Mode),
		Circuit:    string(a.Circuit),
		Scheme:     a.Scheme,
		Commitment: snap.Commitment.Hex(),
		Timestamp:  snap.AnchoredAt,
	}
	if sub.Timestamp != 0 {
		b.Timestamp = sub.Timestamp
	}
	if sub.Submitter != (common.Address{}) {
		b.Submitter = sub.Submitter.Hex()
	}
	for _, in := range a.PublicInputs {
		b.PublicInputs = append(b.PublicInputs, in.Hex())
	}
	if snap.Mode == pipeline.ModeDisclosure && snap.Claim != nil {
		idx := sub.DisclosureIndex
		b.DisclosureIndex = &idx
		b.Revealed = revealed(*snap.Claim)
	}
	return b, nil
}

func revealed(c disclosure.Claim) *Revealed {
	r := &Revealed{}
	if c.Flags.EmailDomain {
		r.DomainHash = c.DomainHash.Hex()
	}
	if c.Flags.SizeRange {
		lo, hi := c.SizeMin, c.SizeMax
		r.SizeMin, r.SizeMax = &lo, &hi
	}
	if c.Flags.FileType {
		r.FileType = disclosure.DecodeFileTypeBytes(c.FileType)
	}
	return r
}

// Digest is the sha256 of the JSON encoding of b.
func Digest(b Body) ([32]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// Sign signs b with key.
func Sign(key *btcec.PrivateKey, b Body) (*Receipt, error) {
	digest, err := Digest(b)
	if err != nil {
		return nil, err
	}
	sig, err := schnorr.Sign(key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("schnorr sign failed: %w", err)
	}
	return &Receipt{
		Body:      b,
		PublicKey: hex.EncodeToString(schnorr.SerializePubKey(key.PubKey())),
		Signature: hex.EncodeToString(sig.Serialize()),
	}, nil
}

// Verify checks the signature of r against its embedded public key.
func (r *Receipt) Verify() error {
	pkBytes, err := hex.DecodeString(r.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: public key: %w", ErrInvalidReceipt, err)
	}
	pub, err := schnorr.ParsePubKey(pkBytes)
	if err != nil {
		return fmt.Errorf("%w: public key: %w", ErrInvalidReceipt, err)
	}
	sigBytes, err := hex.DecodeString(r.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature: %w", ErrInvalidReceipt, err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("%w: signature: %w", ErrInvalidReceipt, err)
	}
	digest, err := Digest(r.Body)
	if err != nil {
		return err
	}
	if !sig.Verify(digest[:], pub) {
		return fmt.Errorf("%w: signature verification failed", ErrInvalidReceipt)
	}
	return nil
}

// CommitmentElement parses the commitment of the body.
func (b Body) CommitmentElement() (field.Element, error) {
	return field.ParseCommitment(b.Commitment)
}

// Write encodes r as indented JSON.
func Write(w io.Writer, r *Receipt) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Read decodes a receipt.
func Read(rd io.Reader) (*Receipt, error) {
	var r Receipt
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReceipt, err)
	}
	return &r, nil
}

// LoadOrCreateKey reads the hex signing key at path, creating it when
// missing.
func LoadOrCreateKey(path string) (*btcec.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil || len(raw) != btcec.PrivKeyBytesLen {
			return nil, fmt.Errorf("invalid receipt key %s", path)
		}
		key, _ := btcec.PrivKeyFromBytes(raw)
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key.Serialize())+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write receipt key: %w", err)
	}
	return key, nil
}
