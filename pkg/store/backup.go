package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"zkpoe/pkg/field"
)

var ErrSaltBackup = errors.New("invalid salt backup")

// scryptWorkFactor is the cost of passphrase protected backups.
var scryptWorkFactor = 18

// ExportSalt writes a salt backup. With an empty passphrase the backup is the
// plain hex salt, otherwise an armored age file encrypted to the passphrase.
func ExportSalt(w io.Writer, salt field.Bytes31, passphrase string) error {
	if passphrase == "" {
		_, err := fmt.Fprintln(w, salt.Hex())
		return err
	}
	r, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return err
	}
	r.SetWorkFactor(scryptWorkFactor)
	aw := armor.NewWriter(w)
	ew, err := age.Encrypt(aw, r)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(ew, salt.Hex()); err != nil {
		return err
	}
	if err := ew.Close(); err != nil {
		return err
	}
	return aw.Close()
}

// ImportSalt reads a backup written by ExportSalt. Plain hex backups ignore
// the passphrase.
func ImportSalt(r io.Reader, passphrase string) (field.Bytes31, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if peek, _ := br.Peek(len(armor.Header)); string(peek) == armor.Header {
		identity, err := age.NewScryptIdentity(passphrase)
		if err != nil {
			return field.Bytes31{}, fmt.Errorf("%w: %w", ErrSaltBackup, err)
		}
		dr, err := age.Decrypt(armor.NewReader(br), identity)
		if err != nil {
			return field.Bytes31{}, fmt.Errorf("%w: %w", ErrSaltBackup, err)
		}
		src = dr
	}
	data, err := io.ReadAll(io.LimitReader(src, 1024))
	if err != nil {
		return field.Bytes31{}, fmt.Errorf("%w: %w", ErrSaltBackup, err)
	}
	salt, err := field.ParseBytes31(strings.TrimSpace(string(data)))
	if err != nil {
		return field.Bytes31{}, fmt.Errorf("%w: %w", ErrSaltBackup, err)
	}
	return salt, nil
}
