package registry

import (
	"fmt"
	"strings"
)

var defaultRPCByChainID = map[int64]string{
	1:        "https://eth.llamarpc.com",
	11155111: "https://ethereum-sepolia-rpc.publicnode.com",
	8453:     "https://mainnet.base.org",
	42161:    "https://arb1.arbitrum.io/rpc",
	10:       "https://mainnet.optimism.io",
}

func DefaultRPCURL(chainID int64) (string, bool) {
	v, ok := defaultRPCByChainID[chainID]
	return v, ok
}

func ResolveRPCURL(override string, chainID int64) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if v, ok := DefaultRPCURL(chainID); ok {
		return v, nil
	}
	return "", fmt.Errorf("no default rpc configured for chain id %d; set rpc_url", chainID)
}

// ChainName is used in AI context payloads so the model can name the
// network in replies.
func ChainName(chainID int64) string {
	switch chainID {
	case 1:
		return "Ethereum Mainnet"
	case 11155111:
		return "Sepolia Testnet"
	case 8453:
		return "Base"
	case 42161:
		return "Arbitrum One"
	case 10:
		return "OP Mainnet"
	default:
		return fmt.Sprintf("chain %d", chainID)
	}
}
