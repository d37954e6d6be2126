package disclosure

import (
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark/frontend"
	gmimc "github.com/consensys/gnark/std/hash/mimc"
	"github.com/consensys/gnark/std/selector"

	"zkpoe/pkg/field"
)

const atSign = int('@')

// DomainHash extracts the bytes following the last '@' of the zero padded
// email (or the whole email when there is none), takes a 50 byte window
// and hashes it with MiMC, one field element per byte.
func DomainHash(api frontend.API, email [EmailLen]frontend.Variable) (frontend.Variable, error) {
	start := frontend.Variable(0)
	for i := range email {
		isAt := api.IsZero(api.Sub(email[i], atSign))
		start = api.Select(isAt, i+1, start)
	}

	// the window may run past the email, those bytes read as zero
	padded := make([]frontend.Variable, EmailLen+DomainLen)
	for i := range padded {
		if i < EmailLen {
			padded[i] = email[i]
		} else {
			padded[i] = 0
		}
	}

	h, err := gmimc.NewMiMC(api)
	if err != nil {
		return nil, err
	}
	for j := 0; j < DomainLen; j++ {
		h.Write(selector.Mux(api, api.Add(start, j), padded...))
	}
	return h.Sum(), nil
}

// ExtractDomain returns the text after the last '@', or s itself.
func ExtractDomain(s string) string {
	if i := strings.LastIndexByte(s, '@'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// HashDomain is the native counterpart of DomainHash. It accepts a bare
// domain or a full email; domains longer than 50 bytes are rejected.
func HashDomain(domainOrEmail string) (field.Element, error) {
	padded, err := field.EncodeFixedWidth(ExtractDomain(domainOrEmail), DomainLen)
	if err != nil {
		return field.Element{}, err
	}

	h := mimc.NewMiMC()
	for _, b := range padded {
		var fe fr.Element
		fe.SetUint64(uint64(b))
		_, _ = h.Write(fe.Marshal())
	}

	var out field.Element
	copy(out[:], h.Sum(nil))
	return out, nil
}
