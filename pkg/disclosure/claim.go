// Package disclosure encodes selective disclosure claims into the fixed
// layout shared by the disclosure circuit and the contract.
package disclosure

import (
	"errors"
	"fmt"

	circuit "zkpoe/circuits/disclosure"
	"zkpoe/pkg/field"
)

const (
	EmailLen    = circuit.EmailLen
	FileTypeLen = circuit.FileTypeLen
)

var ErrInvalidDisclosureClaim = errors.New("invalid disclosure claim")

// DomainHasher computes the domain hash of an email.
type DomainHasher interface {
	ComputeDomainHash(domainOrEmail string) (field.Element, error)
}

// Flags select the properties to reveal.
type Flags struct {
	EmailDomain bool `json:"revealEmailDomain" cbor:"revealEmailDomain"`
	SizeRange   bool `json:"revealSizeRange" cbor:"revealSizeRange"`
	FileType    bool `json:"revealFileType" cbor:"revealFileType"`
}

// Any reports whether at least one property is revealed.
func (f Flags) Any() bool {
	return f.EmailDomain || f.SizeRange || f.FileType
}

// Values are the true properties of the document plus the claimed range.
type Values struct {
	Email    string
	FileSize uint64
	FileType string
	SizeMin  uint64
	SizeMax  uint64
}

// Claim is the encoded disclosure. Fields of hidden properties are zero.
type Claim struct {
	Flags
	DomainHash field.Element     `json:"claimedDomainHash" cbor:"claimedDomainHash"`
	SizeMin    uint64            `json:"claimedSizeMin" cbor:"claimedSizeMin"`
	SizeMax    uint64            `json:"claimedSizeMax" cbor:"claimedSizeMax"`
	FileType   [FileTypeLen]byte `json:"claimedFileType" cbor:"claimedFileType"`
}

// EncodeClaim validates the requested disclosure against the true values and
// returns its encoding. It is the only place hidden fields get their zero
// value.
func EncodeClaim(hasher DomainHasher, flags Flags, values Values) (Claim, error) {
	if !flags.Any() {
		return Claim{}, fmt.Errorf("%w: nothing to reveal", ErrInvalidDisclosureClaim)
	}
	if _, err := field.EncodeFixedWidth(values.Email, EmailLen); err != nil {
		return Claim{}, fmt.Errorf("%w: email: %w", ErrInvalidDisclosureClaim, err)
	}
	fileType, err := field.EncodeFixedWidth(values.FileType, FileTypeLen)
	if err != nil {
		return Claim{}, fmt.Errorf("%w: file type: %w", ErrInvalidDisclosureClaim, err)
	}

	claim := Claim{Flags: flags}
	if flags.EmailDomain {
		if values.Email == "" {
			return Claim{}, fmt.Errorf("%w: email required to reveal its domain", ErrInvalidDisclosureClaim)
		}
		claim.DomainHash, err = hasher.ComputeDomainHash(values.Email)
		if err != nil {
			return Claim{}, fmt.Errorf("%w: domain: %w", ErrInvalidDisclosureClaim, err)
		}
	}
	if flags.SizeRange {
		if values.SizeMin > values.SizeMax {
			return Claim{}, fmt.Errorf("%w: size range [%d, %d] is empty",
				ErrInvalidDisclosureClaim, values.SizeMin, values.SizeMax)
		}
		if values.FileSize < values.SizeMin || values.FileSize > values.SizeMax {
			return Claim{}, fmt.Errorf("%w: file size %d outside [%d, %d]",
				ErrInvalidDisclosureClaim, values.FileSize, values.SizeMin, values.SizeMax)
		}
		claim.SizeMin, claim.SizeMax = values.SizeMin, values.SizeMax
	}
	if flags.FileType {
		if values.FileType == "" {
			return Claim{}, fmt.Errorf("%w: file type required to reveal it", ErrInvalidDisclosureClaim)
		}
		copy(claim.FileType[:], fileType)
	}
	return claim, nil
}

// SizeWords returns the claimed range as contract words.
func (c Claim) SizeWords() (min, max [field.WordLen]byte) {
	return field.Uint64Word(c.SizeMin), field.Uint64Word(c.SizeMax)
}

// FileTypeWords spreads the file type over 20 words, one byte in the low
// order position of each.
func (c Claim) FileTypeWords() [FileTypeLen][field.WordLen]byte {
	return FileTypeWords(c.FileType)
}

// FileTypeWords spreads b over 20 words, one byte in the low order position
// of each.
func FileTypeWords(b [FileTypeLen]byte) [FileTypeLen][field.WordLen]byte {
	var words [FileTypeLen][field.WordLen]byte
	for i, ch := range b {
		words[i][field.WordLen-1] = ch
	}
	return words
}

// DecodeFileType reverses FileTypeWords. Zero words are empty slots.
func DecodeFileType(words [FileTypeLen][field.WordLen]byte) string {
	out := make([]byte, 0, FileTypeLen)
	for _, w := range words {
		if ch := w[field.WordLen-1]; ch != 0 {
			out = append(out, ch)
		}
	}
	return string(out)
}

// DecodeFileTypeBytes decodes a fixed width file type.
func DecodeFileTypeBytes(b [FileTypeLen]byte) string {
	return field.DecodeFixedWidth(b[:])
}
