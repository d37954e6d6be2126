package disclosure

import (
	"zkpoe/pkg/field"
)

// Inputs are the concrete values of one disclosure proof.
type Inputs struct {
	DocumentHash field.Bytes31
	Salt         field.Bytes31
	Email        [EmailLen]byte
	FileSize     uint64
	FileType     [FileTypeLen]byte

	Commitment        field.Element
	RevealEmailDomain bool
	RevealSizeRange   bool
	RevealFileType    bool
	ClaimedDomainHash field.Element
	ClaimedSizeMin    uint64
	ClaimedSizeMax    uint64
	ClaimedFileType   [FileTypeLen]byte
}

// Assignment builds a full witness assignment.
func (in *Inputs) Assignment() *Circuit {
	a := &Circuit{
		DocumentHash:      in.DocumentHash.BigInt(),
		Salt:              in.Salt.BigInt(),
		FileSize:          in.FileSize,
		Commitment:        in.Commitment.BigInt(),
		RevealEmailDomain: boolVar(in.RevealEmailDomain),
		RevealSizeRange:   boolVar(in.RevealSizeRange),
		RevealFileType:    boolVar(in.RevealFileType),
		ClaimedDomainHash: in.ClaimedDomainHash.BigInt(),
		ClaimedSizeMin:    in.ClaimedSizeMin,
		ClaimedSizeMax:    in.ClaimedSizeMax,
	}
	for i, b := range in.Email {
		a.Email[i] = int(b)
	}
	for i := range in.FileType {
		a.FileType[i] = int(in.FileType[i])
		a.ClaimedFileType[i] = int(in.ClaimedFileType[i])
	}
	return a
}

func boolVar(b bool) int {
	if b {
		return 1
	}
	return 0
}
