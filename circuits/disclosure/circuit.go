package disclosure

import (
	"github.com/consensys/gnark/frontend"

	"zkpoe/circuits/commitment"
)

const (
	// EmailLen is the fixed width of the author email.
	EmailLen = 100
	// DomainLen is the fixed width of the extracted email domain.
	DomainLen = 50
	// FileTypeLen is the fixed width of the file type.
	FileTypeLen = 20
	// SizeBits bounds file sizes and the claimed range.
	SizeBits = 64
)

// Circuit proves that the opening of a commitment has the revealed
// properties, without revealing the rest:
//
//	Commitment = MiMC(document_hash, salt)
//	reveal_email_domain => MiMC(domain(email)) == claimed_domain_hash
//	reveal_size_range   => claimed_size_min <= file_size <= claimed_size_max
//	reveal_file_type    => file_type == claimed_file_type
//
// Claimed values of hidden properties are not constrained.
type Circuit struct {
	// Secret witness
	DocumentHash frontend.Variable
	Salt         frontend.Variable
	Email        [EmailLen]frontend.Variable
	FileSize     frontend.Variable
	FileType     [FileTypeLen]frontend.Variable

	// Public inputs
	Commitment        frontend.Variable              `gnark:",public"`
	RevealEmailDomain frontend.Variable              `gnark:",public"`
	RevealSizeRange   frontend.Variable              `gnark:",public"`
	RevealFileType    frontend.Variable              `gnark:",public"`
	ClaimedDomainHash frontend.Variable              `gnark:",public"`
	ClaimedSizeMin    frontend.Variable              `gnark:",public"`
	ClaimedSizeMax    frontend.Variable              `gnark:",public"`
	ClaimedFileType   [FileTypeLen]frontend.Variable `gnark:",public"`
}

func (c *Circuit) Define(api frontend.API) error {
	// 1. Opening of the base commitment
	cCalc, err := commitment.Commit(api, c.DocumentHash, c.Salt)
	if err != nil {
		return err
	}
	api.AssertIsEqual(cCalc, c.Commitment)

	api.AssertIsBoolean(c.RevealEmailDomain)
	api.AssertIsBoolean(c.RevealSizeRange)
	api.AssertIsBoolean(c.RevealFileType)

	for i := range c.Email {
		api.ToBinary(c.Email[i], 8)
	}
	for i := range c.FileType {
		api.ToBinary(c.FileType[i], 8)
		api.ToBinary(c.ClaimedFileType[i], 8)
	}

	// 2. Email domain
	domainHash, err := DomainHash(api, c.Email)
	if err != nil {
		return err
	}
	api.AssertIsEqual(api.Mul(c.RevealEmailDomain, api.Sub(domainHash, c.ClaimedDomainHash)), 0)

	// 3. Size range; a hidden range collapses to [0, size]
	api.ToBinary(c.FileSize, SizeBits)
	api.ToBinary(c.ClaimedSizeMin, SizeBits)
	api.ToBinary(c.ClaimedSizeMax, SizeBits)
	lo := api.Select(c.RevealSizeRange, c.ClaimedSizeMin, 0)
	hi := api.Select(c.RevealSizeRange, c.ClaimedSizeMax, c.FileSize)
	api.AssertIsLessOrEqual(lo, c.FileSize)
	api.AssertIsLessOrEqual(c.FileSize, hi)

	// 4. File type
	for i := range c.FileType {
		api.AssertIsEqual(api.Mul(c.RevealFileType, api.Sub(c.FileType[i], c.ClaimedFileType[i])), 0)
	}
	return nil
}
