package web3

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrContractCall            = errors.New("contract call failed")
	ErrInvalidProof            = errors.New("contract rejected the proof")
	ErrCommitmentAlreadyExists = errors.New("commitment already exists on chain")
	ErrCommitmentDoesNotExist  = errors.New("commitment does not exist on chain")
	ErrEmptyBatch              = errors.New("empty commitment batch")
	ErrNoSigner                = errors.New("no private key set")
	ErrTxFailed                = errors.New("transaction reverted")
)

// revertErrors maps the custom errors of the contract to their sentinels.
var revertErrors = map[string]error{
	"InvalidProof":            ErrInvalidProof,
	"CommitmentAlreadyExists": ErrCommitmentAlreadyExists,
	"CommitmentDoesNotExist":  ErrCommitmentDoesNotExist,
	"EmptyBatch":              ErrEmptyBatch,
}

// decodeRevert turns an RPC error into a contract error. Known custom errors
// are matched by their 4 byte selector; anything else keeps the RPC error
// text verbatim.
func decodeRevert(err error) error {
	if err == nil {
		return nil
	}
	if data := revertData(err); len(data) >= 4 {
		for name, e := range contractABI.Errors {
			if sentinel, ok := revertErrors[name]; ok && [4]byte(e.ID[:4]) == [4]byte(data[:4]) {
				return fmt.Errorf("%w: %w: %w", ErrContractCall, sentinel, err)
			}
		}
	}
	// some providers drop the data but keep the decoded name in the message
	msg := err.Error()
	for name, sentinel := range revertErrors {
		if strings.Contains(msg, name+"()") {
			return fmt.Errorf("%w: %w: %w", ErrContractCall, sentinel, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrContractCall, err)
}

// revertData extracts the revert payload of an RPC error.
func revertData(err error) []byte {
	var dataErr gethrpc.DataError
	if !errors.As(err, &dataErr) {
		return nil
	}
	switch v := dataErr.ErrorData().(type) {
	case []byte:
		return v
	case hexutil.Bytes:
		return v
	case string:
		return common.FromHex(v)
	}
	return nil
}
