// Package web3 is the boundary to the ProofOfExistence registry contract.
package web3

import (
	"context"
	"crypto/ecdsa"
	_ "embed"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	lru "github.com/hashicorp/golang-lru/v2"

	"zkpoe/pkg/log"
)

const (
	// web3QueryTimeout bounds read calls.
	web3QueryTimeout = 15 * time.Second

	// DefaultTxTimeout bounds the wait for a transaction receipt.
	DefaultTxTimeout = 2 * time.Minute

	receiptPollInterval = 2 * time.Second
	existenceCacheSize  = 1024
)

//go:embed ProofOfExistence.abi.json
var proofOfExistenceABI string

var contractABI = mustParseABI(proofOfExistenceABI)

func mustParseABI(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid ProofOfExistence ABI: %v", err))
	}
	return a
}

// Backend is the JSON-RPC surface the contracts need. *ethclient.Client
// implements it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Contracts binds the registry contract of one network.
type Contracts struct {
	Network Network
	// TxTimeout bounds the wait for a transaction receipt.
	TxTimeout time.Duration

	backend  Backend
	contract *bind.BoundContract
	signer   *ecdsa.PrivateKey

	// existing holds records known to exist. They never change once written.
	existing *lru.Cache[common.Hash, Existence]
}

// Dial connects to rpcURL, or to the default RPC of the network when empty,
// and checks the chain id.
func Dial(ctx context.Context, network Network, rpcURL string) (*Contracts, error) {
	if rpcURL == "" {
		rpcURL = network.RPC
	}
	cli, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrContractCall, rpcURL, err)
	}
	qctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	chainID, err := cli.ChainID(qctx)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("%w: chain id: %w", ErrContractCall, err)
	}
	if network.ChainID != 0 && chainID.Uint64() != network.ChainID {
		cli.Close()
		return nil, fmt.Errorf("%w: rpc %s serves chain %d, expected %d",
			ErrContractCall, rpcURL, chainID.Uint64(), network.ChainID)
	}
	network.ChainID = chainID.Uint64()
	log.Infow("web3 client initialized",
		"network", network.Name,
		"chainID", network.ChainID,
		"contract", network.Contract.Hex())
	return New(network, cli), nil
}

// New binds the registry of network over an existing backend.
func New(network Network, backend Backend) *Contracts {
	cache, err := lru.New[common.Hash, Existence](existenceCacheSize)
	if err != nil {
		panic(err)
	}
	return &Contracts{
		Network:   network,
		TxTimeout: DefaultTxTimeout,
		backend:   backend,
		contract:  bind.NewBoundContract(network.Contract, contractABI, backend, backend, backend),
		existing:  cache,
	}
}

// SetAccountPrivateKey sets the key that signs transactions.
func (c *Contracts) SetAccountPrivateKey(hexPrivKey string) error {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexPrivKey), "0x"))
	if err != nil {
		return fmt.Errorf("failed to add private key: %w", err)
	}
	c.signer = key
	return nil
}

// AccountAddress returns the signer address, or the zero address when no key
// is set.
func (c *Contracts) AccountAddress() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(c.signer.PublicKey)
}

// HasSigner reports whether transactions can be sent.
func (c *Contracts) HasSigner() bool { return c.signer != nil }

func (c *Contracts) authTransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.signer == nil {
		return nil, ErrNoSigner
	}
	auth, err := bind.NewKeyedTransactorWithChainID(c.signer, new(big.Int).SetUint64(c.Network.ChainID))
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx
	return auth, nil
}

func (c *Contracts) call(ctx context.Context, method string, args ...any) ([]any, error) {
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, decodeRevert(fmt.Errorf("%s: %w", method, err))
	}
	return out, nil
}

// waitReceipt polls for the receipt of a mined transaction.
func (c *Contracts) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	timeout := c.TxTimeout
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %w: tx %s", ErrContractCall, ErrTxFailed, hash.Hex())
			}
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for tx %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
