package disclosure

import (
	"testing"

	"github.com/stretchr/testify/require"

	circuit "zkpoe/circuits/disclosure"
	"zkpoe/pkg/field"
)

type hasherFunc func(string) (field.Element, error)

func (f hasherFunc) ComputeDomainHash(s string) (field.Element, error) { return f(s) }

var nativeHasher = hasherFunc(circuit.HashDomain)

func TestSizeRangeValidation(t *testing.T) {
	flags := Flags{SizeRange: true}
	claim, err := EncodeClaim(nativeHasher, flags, Values{FileSize: 1500, SizeMin: 1000, SizeMax: 2000})
	require.NoError(t, err)
	require.Equal(t, uint64(1000), claim.SizeMin)
	require.Equal(t, uint64(2000), claim.SizeMax)

	_, err = EncodeClaim(nativeHasher, flags, Values{FileSize: 5000, SizeMin: 1000, SizeMax: 2000})
	require.ErrorIs(t, err, ErrInvalidDisclosureClaim)

	_, err = EncodeClaim(nativeHasher, flags, Values{FileSize: 1500, SizeMin: 2000, SizeMax: 1000})
	require.ErrorIs(t, err, ErrInvalidDisclosureClaim)

	// an explicit [0, 0] range is indistinguishable from a hidden one
	claim, err = EncodeClaim(nativeHasher, flags, Values{FileSize: 0})
	require.NoError(t, err)
	min, max := claim.SizeWords()
	require.Equal(t, [32]byte{}, min)
	require.Equal(t, [32]byte{}, max)
}

func TestHiddenFieldsAreZero(t *testing.T) {
	values := Values{
		Email:    "carol@university.edu",
		FileSize: 4096,
		FileType: "docx",
		SizeMin:  1,
		SizeMax:  10000,
	}
	claim, err := EncodeClaim(nativeHasher, Flags{FileType: true}, values)
	require.NoError(t, err)
	require.True(t, claim.DomainHash.IsZero())
	require.Zero(t, claim.SizeMin)
	require.Zero(t, claim.SizeMax)
	require.Equal(t, "docx", DecodeFileTypeBytes(claim.FileType))

	claim, err = EncodeClaim(nativeHasher, Flags{EmailDomain: true}, values)
	require.NoError(t, err)
	want, err := circuit.HashDomain("university.edu")
	require.NoError(t, err)
	require.Equal(t, want, claim.DomainHash)
	require.Equal(t, [FileTypeLen]byte{}, claim.FileType)
}

func TestRejectedClaims(t *testing.T) {
	cases := map[string]struct {
		flags  Flags
		values Values
	}{
		"nothing revealed":      {Flags{}, Values{Email: "a@b.c"}},
		"file type too long":    {Flags{FileType: true}, Values{FileType: "application/vnd.ms-excel"}},
		"email too long":        {Flags{SizeRange: true}, Values{Email: string(make([]byte, 101))}},
		"missing email":         {Flags{EmailDomain: true}, Values{}},
		"missing file type":     {Flags{FileType: true}, Values{}},
		"domain longer than 50": {Flags{EmailDomain: true}, Values{Email: "x@" + string(make([]byte, 60))}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := EncodeClaim(nativeHasher, tc.flags, tc.values)
			require.ErrorIs(t, err, ErrInvalidDisclosureClaim)
		})
	}
}

func TestFileTypeWordsRoundTrip(t *testing.T) {
	for _, s := range []string{"", "pdf", "png", "tar.gz", "12345678901234567890"} {
		enc, err := field.EncodeFixedWidth(s, FileTypeLen)
		require.NoError(t, err)
		var b [FileTypeLen]byte
		copy(b[:], enc)

		words := FileTypeWords(b)
		for i, w := range words {
			// only the low order byte may be set
			require.Equal(t, [31]byte{}, [31]byte(w[:31]), "word %d", i)
		}
		require.Equal(t, s, DecodeFileType(words))
		require.Equal(t, s, DecodeFileTypeBytes(b))
	}
}
