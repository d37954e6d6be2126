// Package field converts between document bytes, digests, BN254 field elements
// and the hex and bytes32 encodings used by the circuits and the contract.
package field

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
)

const (
	// Prefix marks every hex encoded value.
	Prefix = "0x"
	// TruncatedLen is the number of digest bytes kept as the document field.
	TruncatedLen = 31
	// WordLen is the width of a contract bytes32 word.
	WordLen = 32
)

var (
	ErrUnreadableInput = errors.New("unreadable input")
	ErrValueTooLong    = errors.New("value too long")
	ErrMalformedHex    = errors.New("malformed hex value")
	ErrOutOfField      = errors.New("value is not below the field modulus")
)

// Digest is the SHA-256 digest of a document.
type Digest [sha256.Size]byte

// Bytes31 holds a 31 byte value: the truncated document digest or a salt.
type Bytes31 [TruncatedLen]byte

// Element is a canonical BN254 scalar field element, big-endian. It is also
// the bytes32 word the contract receives for it.
type Element [WordLen]byte

// DigestBytes hashes an in-memory document.
func DigestBytes(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// DigestReader hashes everything readable from r.
func DigestReader(r io.Reader) (Digest, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return Digest{}, fmt.Errorf("%w: %v", ErrUnreadableInput, err)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// Hex returns the 0x prefixed 64 char digest.
func (d Digest) Hex() string {
	return Prefix + hex.EncodeToString(d[:])
}

// ParseDigest parses exactly 32 hex bytes, with or without prefix.
func ParseDigest(s string) (Digest, error) {
	raw, err := decodeHex(s, sha256.Size, true)
	if err != nil {
		return Digest{}, err
	}
	var d Digest
	copy(d[:], raw)
	return d, nil
}

// ToFieldElement keeps the first 31 bytes of the digest, which is always
// below the BN254 modulus.
func ToFieldElement(d Digest) Bytes31 {
	var b Bytes31
	copy(b[:], d[:TruncatedLen])
	return b
}

// RandomSalt draws a fresh 31 byte salt from crypto/rand.
func RandomSalt() (Bytes31, error) {
	var s Bytes31
	if _, err := rand.Read(s[:]); err != nil {
		return Bytes31{}, fmt.Errorf("failed to read random salt: %w", err)
	}
	return s, nil
}

// Hex returns the 0x prefixed 62 char form.
func (b Bytes31) Hex() string {
	return Prefix + hex.EncodeToString(b[:])
}

func (b Bytes31) String() string { return b.Hex() }

// Element widens the value into a field element.
func (b Bytes31) Element() Element {
	var e Element
	copy(e[1:], b[:])
	return e
}

// BigInt returns the value as an integer.
func (b Bytes31) BigInt() *big.Int {
	return new(big.Int).SetBytes(b[:])
}

// IsZero reports whether every byte is zero.
func (b Bytes31) IsZero() bool {
	return b == Bytes31{}
}

// ParseBytes31 parses a 62 char hex value, with or without prefix.
func ParseBytes31(s string) (Bytes31, error) {
	raw, err := decodeHex(s, TruncatedLen, true)
	if err != nil {
		return Bytes31{}, err
	}
	var b Bytes31
	copy(b[:], raw)
	return b, nil
}

// Hex returns the 0x prefixed 64 char form.
func (e Element) Hex() string {
	return Prefix + hex.EncodeToString(e[:])
}

func (e Element) String() string { return e.Hex() }

// BigInt returns the element as an integer.
func (e Element) BigInt() *big.Int {
	return new(big.Int).SetBytes(e[:])
}

// Fr returns the element in gnark-crypto form.
func (e Element) Fr() fr.Element {
	var f fr.Element
	f.SetBytes(e[:])
	return f
}

// IsZero reports whether the element is the zero element.
func (e Element) IsZero() bool {
	return e == Element{}
}

// Bytes31 narrows the element, failing when the top byte is set.
func (e Element) Bytes31() (Bytes31, error) {
	if e[0] != 0 {
		return Bytes31{}, fmt.Errorf("%w: %s does not fit in 31 bytes", ErrValueTooLong, e.Hex())
	}
	var b Bytes31
	copy(b[:], e[1:])
	return b, nil
}

// ElementFromFr encodes a gnark-crypto element.
func ElementFromFr(f *fr.Element) Element {
	return Element(f.Bytes())
}

// ElementFromBig encodes an integer, which must be below the modulus.
func ElementFromBig(v *big.Int) (Element, error) {
	if v.Sign() < 0 || v.Cmp(fr.Modulus()) >= 0 {
		return Element{}, fmt.Errorf("%w: %s", ErrOutOfField, v.String())
	}
	var e Element
	v.FillBytes(e[:])
	return e, nil
}

// ParseElement parses a 64 char hex value, with or without prefix. Shorter
// values are left padded with zeros.
func ParseElement(s string) (Element, error) {
	raw, err := decodeHex(s, WordLen, false)
	if err != nil {
		return Element{}, err
	}
	return ElementFromBig(new(big.Int).SetBytes(raw))
}

// NormalizeHex adds the 0x prefix, lowercases, and checks the value is a
// full bytes32 (66 chars).
func NormalizeHex(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, Prefix) {
		s = Prefix + s
	}
	if len(s) != 2+2*WordLen {
		return "", fmt.Errorf("%w: expected %d chars, got %d", ErrMalformedHex, 2+2*WordLen, len(s))
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedHex, err)
	}
	return s, nil
}

// ParseCommitment parses a commitment typed by a user. Unlike ParseElement
// it requires the full 66 char form.
func ParseCommitment(s string) (Element, error) {
	n, err := NormalizeHex(s)
	if err != nil {
		return Element{}, err
	}
	return ParseElement(n)
}

// Uint64Word encodes an integer as a bytes32 word.
func Uint64Word(v uint64) [WordLen]byte {
	return uint256.NewInt(v).Bytes32()
}

// WordUint64 decodes a bytes32 word that must fit in 64 bits.
func WordUint64(w [WordLen]byte) (uint64, error) {
	v := new(uint256.Int).SetBytes32(w[:])
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: word %x exceeds 64 bits", ErrValueTooLong, w)
	}
	return v.Uint64(), nil
}

// EncodeFixedWidth right pads the UTF-8 bytes of s with zeros up to width.
// Values longer than width are rejected, never truncated.
func EncodeFixedWidth(s string, width int) ([]byte, error) {
	if len(s) > width {
		return nil, fmt.Errorf("%w: %d bytes exceeds width %d", ErrValueTooLong, len(s), width)
	}
	out := make([]byte, width)
	copy(out, s)
	return out, nil
}

// DecodeFixedWidth strips the zero padding added by EncodeFixedWidth.
func DecodeFixedWidth(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}

// Short truncates a hex string for display, keeping n chars on each side.
func Short(s string, n int) string {
	if len(s) <= 2+2*n+3 {
		return s
	}
	return s[:n+2] + "..." + s[len(s)-n:]
}

func decodeHex(s string, width int, exact bool) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), Prefix)
	if exact && len(s) != 2*width {
		return nil, fmt.Errorf("%w: expected %d hex chars, got %d", ErrMalformedHex, 2*width, len(s))
	}
	if len(s) == 0 || len(s) > 2*width {
		return nil, fmt.Errorf("%w: expected at most %d hex chars, got %d", ErrMalformedHex, 2*width, len(s))
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHex, err)
	}
	out := make([]byte, width)
	copy(out[width-len(raw):], raw)
	return out, nil
}
