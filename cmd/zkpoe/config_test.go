package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"zkpoe/pkg/field"
	"zkpoe/pkg/web3"
)

func newFlagSet(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	fs := flag.NewFlagSet("zkpoe", flag.ContinueOnError)
	addConfigFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(newFlagSet(t))
	require.NoError(t, err)
	require.NoError(t, cfg.validate())
	require.Equal(t, web3.DefaultNetwork, cfg.Network)
	require.Equal(t, web3.DefaultTxTimeout, cfg.Web3.Timeout)
	require.Equal(t, "groth16", cfg.Scheme)
	require.Zero(t, cfg.Prove.Timeout)
	require.Equal(t, filepath.Join(cfg.Datadir, "artifacts"), cfg.Artifacts)

	net := cfg.network()
	require.Equal(t, uint64(421614), net.ChainID)
}

func TestConfigEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ZKPOE_DATADIR", dir)
	t.Setenv("ZKPOE_WEB3_TIMEOUT", "30s")
	t.Setenv("ZKPOE_PROVE_TIMEOUT", "5m")
	t.Setenv("ZKPOE_WEB3_CONTRACT", "0x00000000000000000000000000000000000000aa")

	cfg, err := loadConfig(newFlagSet(t, "--scheme", "plonk", "--web3.rpc", "http://127.0.0.1:8545"))
	require.NoError(t, err)
	require.NoError(t, cfg.validate())
	require.Equal(t, dir, cfg.Datadir)
	require.Equal(t, filepath.Join(dir, "artifacts"), cfg.Artifacts)
	require.Equal(t, 30*time.Second, cfg.Web3.Timeout)
	require.Equal(t, 5*time.Minute, cfg.Prove.Timeout)
	require.Equal(t, "plonk", cfg.Scheme)

	net := cfg.network()
	require.Equal(t, "http://127.0.0.1:8545", net.RPC)
	require.Equal(t, common.HexToAddress("0xaa"), net.Contract)
}

func TestConfigValidate(t *testing.T) {
	cfg, err := loadConfig(newFlagSet(t, "--network", "mainnet"))
	require.NoError(t, err)
	require.Error(t, cfg.validate())

	cfg, err = loadConfig(newFlagSet(t, "--scheme", "stark"))
	require.NoError(t, err)
	require.Error(t, cfg.validate())

	cfg, err = loadConfig(newFlagSet(t, "--web3.contract", "0x1234"))
	require.NoError(t, err)
	require.Error(t, cfg.validate())

	cfg, err = loadConfig(newFlagSet(t, "--log.level", "verbose"))
	require.NoError(t, err)
	require.Error(t, cfg.validate())

	cfg, err = loadConfig(newFlagSet(t, "--log.level", "fatal"))
	require.NoError(t, err)
	require.NoError(t, cfg.validate())
}

func TestDefaultFileType(t *testing.T) {
	require.Equal(t, "pdf", defaultFileType("/tmp/Thesis.PDF"))
	require.Equal(t, "gz", defaultFileType("backup.tar.gz"))
	require.Equal(t, "", defaultFileType("README"))
}

func TestExplicitSalt(t *testing.T) {
	salt, err := field.RandomSalt()
	require.NoError(t, err)
	src := saltSource{hex: salt.Hex()}
	got, err := src.resolve(nil, field.Digest{})
	require.NoError(t, err)
	require.Equal(t, salt, got)

	src = saltSource{hex: "0x1234"}
	_, err = src.resolve(nil, field.Digest{})
	require.ErrorIs(t, err, field.ErrMalformedHex)
}
