package registry

// Canonical Uniswap V3 contracts used for quoting and swap execution.
// Extended chain-by-chain as deployments are verified.
var uniswapV3ContractsByChainID = map[int64]struct {
	QuoterV2 string
	Router   string
}{
	1: {
		QuoterV2: "0x61fFE014bA17989E743c5F6cB21bF9697530B21e",
		Router:   "0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45",
	},
	11155111: {
		QuoterV2: "0xEd1f6473345F45b75F8179591dd5bA1888cf2FB3",
		Router:   "0x3bFA4769FB09eefC5a80d6E87c3B9C650f7Ae48E",
	},
}

func UniswapV3Contracts(chainID int64) (quoterV2 string, router string, ok bool) {
	contracts, ok := uniswapV3ContractsByChainID[chainID]
	if !ok {
		return "", "", false
	}
	return contracts.QuoterV2, contracts.Router, true
}
