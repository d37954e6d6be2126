// Package store persists pipeline sessions in badger. The private part of a
// session (salt, email, file type) is sealed with an age X25519 identity that
// lives next to the database.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"filippo.io/age"
	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"zkpoe/pkg/field"
	"zkpoe/pkg/log"
	"zkpoe/pkg/pipeline"
)

const (
	prefixSession    = "session:"
	prefixCommitment = "commitment:"

	identityFile = "identity.txt"
	dbDir        = "sessions"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrSealed   = errors.New("cannot unseal session secrets")
)

// Store is the session database.
type Store struct {
	db       *badger.DB
	identity *age.X25519Identity
}

// Open opens, or creates, the store under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	identity, err := loadIdentity(filepath.Join(dir, identityFile))
	if err != nil {
		return nil, err
	}
	opts := badger.DefaultOptions(filepath.Join(dir, dbDir)).WithLogger(badgerLogger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}
	log.Debugw("session store opened", "dir", dir)
	return &Store{db: db, identity: identity}, nil
}

// OpenInMemory opens a store that is lost on Close.
func OpenInMemory(identity *age.X25519Identity) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerLogger{}))
	if err != nil {
		return nil, err
	}
	return &Store{db: db, identity: identity}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func loadIdentity(path string) (*age.X25519Identity, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		identity, err := age.ParseX25519Identity(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("invalid store identity %s: %w", path, err)
		}
		return identity, nil
	case errors.Is(err, os.ErrNotExist):
		identity, err := age.GenerateX25519Identity()
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(identity.String()+"\n"), 0o600); err != nil {
			return nil, fmt.Errorf("failed to write store identity: %w", err)
		}
		log.Infow("created store identity", "path", path)
		return identity, nil
	default:
		return nil, err
	}
}

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

type record struct {
	Session pipeline.Snapshot `cbor:"session"`
	Sealed  []byte            `cbor:"sealed"`
}

func sessionKey(id string) []byte { return []byte(prefixSession + id) }

func commitmentKey(c field.Element) []byte { return []byte(prefixCommitment + c.Hex()) }

// Save writes a snapshot, replacing any earlier one of the same session.
func (s *Store) Save(snap pipeline.Snapshot) error {
	secrets, err := encMode.Marshal(snap.Secrets)
	if err != nil {
		return err
	}
	sealed, err := s.seal(secrets)
	if err != nil {
		return err
	}
	snap.Secrets = pipeline.Secrets{}
	data, err := encMode.Marshal(record{Session: snap, Sealed: sealed})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(sessionKey(snap.ID), data); err != nil {
			return err
		}
		if snap.Commitment.IsZero() {
			return nil
		}
		return txn.Set(commitmentKey(snap.Commitment), []byte(snap.ID))
	})
}

// Load reads the snapshot of a session.
func (s *Store) Load(id string) (pipeline.Snapshot, error) {
	var snap pipeline.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		snap, err = s.get(txn, id)
		return err
	})
	return snap, err
}

// FindByCommitment returns the latest session that produced commitment.
func (s *Store) FindByCommitment(c field.Element) (pipeline.Snapshot, error) {
	var snap pipeline.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(commitmentKey(c))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: commitment %s", ErrNotFound, c.Hex())
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		snap, err = s.get(txn, string(id))
		return err
	})
	return snap, err
}

// List returns every stored session, most recently updated first.
func (s *Store) List() ([]pipeline.Snapshot, error) {
	var snaps []pipeline.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixSession)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			snap, err := s.decode(data)
			if err != nil {
				return fmt.Errorf("session %s: %w", strings.TrimPrefix(string(it.Item().Key()), prefixSession), err)
			}
			snaps = append(snaps, snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].UpdatedAt.After(snaps[j].UpdatedAt) })
	return snaps, nil
}

// Delete removes a session and its commitment index entry.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		snap, err := s.get(txn, id)
		if err != nil {
			return err
		}
		if !snap.Commitment.IsZero() {
			if err := txn.Delete(commitmentKey(snap.Commitment)); err != nil {
				return err
			}
		}
		return txn.Delete(sessionKey(id))
	})
}

func (s *Store) get(txn *badger.Txn, id string) (pipeline.Snapshot, error) {
	item, err := txn.Get(sessionKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return pipeline.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return pipeline.Snapshot{}, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return pipeline.Snapshot{}, err
	}
	return s.decode(data)
}

func (s *Store) decode(data []byte) (pipeline.Snapshot, error) {
	var rec record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return pipeline.Snapshot{}, fmt.Errorf("failed to decode session: %w", err)
	}
	secrets, err := s.unseal(rec.Sealed)
	if err != nil {
		return pipeline.Snapshot{}, err
	}
	if err := cbor.Unmarshal(secrets, &rec.Session.Secrets); err != nil {
		return pipeline.Snapshot{}, fmt.Errorf("%w: %w", ErrSealed, err)
	}
	return rec.Session, nil
}

func (s *Store) seal(plain []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.identity.Recipient())
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plain); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Store) unseal(sealed []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(sealed), s.identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSealed, err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSealed, err)
	}
	return plain, nil
}

// badgerLogger routes badger logs to the process logger. Badger info logs
// are demoted to debug.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, args ...any) {
	log.Logger().Error().Msgf(strings.TrimSpace(f), args...)
}

func (badgerLogger) Warningf(f string, args ...any) {
	log.Logger().Warn().Msgf(strings.TrimSpace(f), args...)
}

func (badgerLogger) Infof(f string, args ...any) {
	log.Logger().Debug().Msgf(strings.TrimSpace(f), args...)
}

func (badgerLogger) Debugf(f string, args ...any) {
	log.Logger().Debug().Msgf(strings.TrimSpace(f), args...)
}
