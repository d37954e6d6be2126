package web3

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultNetwork is used when no network is configured.
const DefaultNetwork = "arbitrum-sepolia"

// Network holds the defaults of a chain the registry is deployed on.
type Network struct {
	Name     string
	ChainID  uint64
	RPC      string
	Contract common.Address
	Explorer string
}

// Networks are the known deployments.
var Networks = map[string]Network{
	"arbitrum-sepolia": {
		Name:     "arbitrum-sepolia",
		ChainID:  421614,
		RPC:      "https://sepolia-rollup.arbitrum.io/rpc",
		Contract: common.HexToAddress("0x808101B5659608f58A8cEebd682D674B6d97B509"),
		Explorer: "https://sepolia.arbiscan.io",
	},
}

// LookupNetwork returns the network registered under name.
func LookupNetwork(name string) (Network, error) {
	if name == "" {
		name = DefaultNetwork
	}
	n, ok := Networks[name]
	if !ok {
		return Network{}, fmt.Errorf("unknown network %q, available: %v", name, NetworkNames())
	}
	return n, nil
}

// NetworkNames returns the known network names, sorted.
func NetworkNames() []string {
	names := make([]string, 0, len(Networks))
	for k := range Networks {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// TxURL links a transaction on the block explorer, or returns "" when the
// network has none.
func (n Network) TxURL(hash common.Hash) string {
	if n.Explorer == "" {
		return ""
	}
	return n.Explorer + "/tx/" + hash.Hex()
}

// AddressURL links an account on the block explorer.
func (n Network) AddressURL(addr common.Address) string {
	if n.Explorer == "" {
		return ""
	}
	return n.Explorer + "/address/" + addr.Hex()
}
