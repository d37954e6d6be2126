package zkruntime

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"

	"zkpoe/pkg/field"
	"zkpoe/pkg/log"
)

// keyPaths returns the proving and verifying key files of a circuit.
func (r *Runtime) keyPaths(id CircuitID) (string, string) {
	dir := filepath.Join(r.cfg.ArtifactsDir, r.scheme.Name())
	return filepath.Join(dir, string(id)+".pk"), filepath.Join(dir, string(id)+".vk")
}

// digestPath holds the digest of the constraint system the keys were built
// for.
func (r *Runtime) digestPath(id CircuitID) string {
	return filepath.Join(r.cfg.ArtifactsDir, r.scheme.Name(), string(id)+".ccs.sha256")
}

// ccsDigest is the sha256 of the serialized constraint system.
func ccsDigest(ccs constraint.ConstraintSystem) (string, error) {
	h := sha256.New()
	if _, err := ccs.WriteTo(h); err != nil {
		return "", fmt.Errorf("failed to serialize constraint system: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// keysFor loads the keys of a circuit from the artifacts directory, running
// a local setup and persisting its result when they are missing or were
// built for another constraint system.
func (r *Runtime) keysFor(id CircuitID, ccs constraint.ConstraintSystem) (Keys, error) {
	if r.cfg.ArtifactsDir == "" {
		return r.setup(id, ccs, "")
	}
	digest, err := ccsDigest(ccs)
	if err != nil {
		return nil, err
	}
	stored, err := os.ReadFile(r.digestPath(id))
	switch {
	case errors.Is(err, os.ErrNotExist):
		// no keys yet, or keys without a recorded constraint system
	case err != nil:
		return nil, err
	case strings.TrimSpace(string(stored)) != digest:
		log.Warnw("stored keys were built for another constraint system, regenerating",
			"circuit", string(id),
			"have", field.Short(strings.TrimSpace(string(stored)), 8),
			"want", field.Short(digest, 8))
	default:
		keys, err := r.readKeys(id)
		switch {
		case err == nil && keys.NbPublicWitness() == NbPublicInputs(id):
			log.Debugw("loaded circuit keys", "circuit", string(id), "dir", r.cfg.ArtifactsDir)
			return keys, nil
		case err == nil:
			log.Warnw("stored keys do not match circuit, regenerating",
				"circuit", string(id),
				"have", keys.NbPublicWitness(),
				"want", NbPublicInputs(id))
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}
	return r.setup(id, ccs, digest)
}

// setup runs a local setup, persisting the keys with their constraint system
// digest when an artifacts directory is configured.
func (r *Runtime) setup(id CircuitID, ccs constraint.ConstraintSystem, digest string) (Keys, error) {
	log.Warnw("running local circuit setup, keys are not from a ceremony",
		"circuit", string(id), "scheme", r.scheme.Name())
	keys, err := r.scheme.Setup(ccs)
	if err != nil {
		return nil, err
	}
	if r.cfg.ArtifactsDir != "" {
		if err := r.writeKeys(id, keys, digest); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func (r *Runtime) readKeys(id CircuitID) (Keys, error) {
	pkPath, vkPath := r.keyPaths(id)
	pkf, err := os.Open(pkPath)
	if err != nil {
		return nil, err
	}
	defer pkf.Close()
	vkf, err := os.Open(vkPath)
	if err != nil {
		return nil, err
	}
	defer vkf.Close()
	return r.scheme.ReadKeys(bufio.NewReader(pkf), bufio.NewReader(vkf))
}

// writeKeys stores the keys, then the digest. Keys without a digest are
// never loaded, so an interrupted write is regenerated on the next run.
func (r *Runtime) writeKeys(id CircuitID, keys Keys, digest string) error {
	pkPath, vkPath := r.keyPaths(id)
	if err := os.MkdirAll(filepath.Dir(pkPath), 0o755); err != nil {
		return fmt.Errorf("failed to create artifacts dir: %w", err)
	}
	pkf, err := os.Create(pkPath)
	if err != nil {
		return err
	}
	defer pkf.Close()
	vkf, err := os.Create(vkPath)
	if err != nil {
		return err
	}
	defer vkf.Close()

	pkw, vkw := bufio.NewWriter(pkf), bufio.NewWriter(vkf)
	if err := keys.WriteTo(pkw, vkw); err != nil {
		return err
	}
	if err := pkw.Flush(); err != nil {
		return err
	}
	if err := vkw.Flush(); err != nil {
		return err
	}
	if err := os.WriteFile(r.digestPath(id), []byte(digest+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write constraint system digest: %w", err)
	}
	log.Infow("stored circuit keys", "circuit", string(id), "pk", pkPath, "vk", vkPath)
	return nil
}

// ExportSolidity writes the Solidity verifier contract of a circuit.
func (r *Runtime) ExportSolidity(id CircuitID, w io.Writer) error {
	c, err := r.Circuit(id)
	if err != nil {
		return err
	}
	if err := c.Keys.ExportSolidity(w); err != nil {
		return fmt.Errorf("failed to export solidity verifier: %w", err)
	}
	return nil
}

// PublicInputs extracts the ordered public inputs of a full witness.
func PublicInputs(w witness.Witness) ([]field.Element, error) {
	pub, err := w.Public()
	if err != nil {
		return nil, err
	}
	vec, ok := pub.Vector().(fr.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected witness vector type %T", pub.Vector())
	}
	out := make([]field.Element, len(vec))
	for i := range vec {
		out[i] = field.ElementFromFr(&vec[i])
	}
	return out, nil
}
