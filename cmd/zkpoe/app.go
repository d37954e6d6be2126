package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcec/v2"

	"zkpoe/pkg/commit"
	"zkpoe/pkg/log"
	"zkpoe/pkg/pipeline"
	"zkpoe/pkg/prover"
	"zkpoe/pkg/receipt"
	"zkpoe/pkg/store"
	"zkpoe/pkg/web3"
	"zkpoe/pkg/zkruntime"
)

// app wires the components of a command. The chain and the store are opened
// on first use.
type app struct {
	cfg     *Config
	network web3.Network

	rt     *zkruntime.Runtime
	engine *commit.Engine
	prover *prover.Generator

	chain *web3.Contracts
	store *store.Store
}

func newApp(cfg *Config) (*app, error) {
	rt, err := zkruntime.New(zkruntime.Config{ArtifactsDir: cfg.Artifacts, Scheme: cfg.Scheme})
	if err != nil {
		return nil, err
	}
	engine := commit.New(rt)
	gen := prover.New(rt, engine)
	gen.ProveTimeout = cfg.Prove.Timeout
	return &app{
		cfg:     cfg,
		network: cfg.network(),
		rt:      rt,
		engine:  engine,
		prover:  gen,
	}, nil
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warnw("failed to close session store", "error", err)
		}
	}
}

// sessions opens the session store under the data directory.
func (a *app) sessions() (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := store.Open(filepath.Join(a.cfg.Datadir, "sessions"))
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

// contracts connects to the registry. A signer is required to submit.
func (a *app) contracts(ctx context.Context, signer bool) (*web3.Contracts, error) {
	if a.chain == nil {
		c, err := web3.Dial(ctx, a.network, "")
		if err != nil {
			return nil, err
		}
		c.TxTimeout = a.cfg.Web3.Timeout
		a.chain = c
	}
	if signer && !a.chain.HasSigner() {
		if a.cfg.Web3.PrivKey == "" {
			return nil, fmt.Errorf("%w: use --web3.privkey or %s_WEB3_PRIVKEY", web3.ErrNoSigner, envPrefix)
		}
		if err := a.chain.SetAccountPrivateKey(a.cfg.Web3.PrivKey); err != nil {
			return nil, err
		}
		log.Infow("using account", "address", a.chain.AccountAddress().Hex())
	}
	return a.chain, nil
}

// deps returns the pipeline collaborators. registry may be nil for sessions
// that never reach the chain.
func (a *app) deps(registry pipeline.Registry) pipeline.Deps {
	return pipeline.Deps{Engine: a.engine, Prover: a.prover, Registry: registry}
}

// save persists the session, logging rather than failing.
func (a *app) save(s *pipeline.Session) {
	st, err := a.sessions()
	if err != nil {
		log.Warnw("session not saved", "error", err)
		return
	}
	if err := st.Save(s.Snapshot()); err != nil {
		log.Warnw("session not saved", "session", s.ID().String(), "error", err)
	}
}

// receiptKey loads the key that signs submission receipts.
func (a *app) receiptKey() (*btcec.PrivateKey, error) {
	if err := os.MkdirAll(a.cfg.Datadir, 0o700); err != nil {
		return nil, err
	}
	return receipt.LoadOrCreateKey(filepath.Join(a.cfg.Datadir, "receipt.key"))
}

// writeReceipt signs the receipt of a submitted session into path, or into
// <datadir>/receipts/<session>.json when path is empty.
func (a *app) writeReceipt(snap pipeline.Snapshot, path string) (string, error) {
	body, err := receipt.FromSnapshot(snap, a.network)
	if err != nil {
		return "", err
	}
	key, err := a.receiptKey()
	if err != nil {
		return "", err
	}
	r, err := receipt.Sign(key, body)
	if err != nil {
		return "", err
	}
	if path == "" {
		dir := filepath.Join(a.cfg.Datadir, "receipts")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", err
		}
		path = filepath.Join(dir, snap.ID+".json")
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := receipt.Write(f, r); err != nil {
		return "", err
	}
	return path, nil
}
