package config

import "strings"

// DefaultMaxBlockRange reproduces the spec's derived per-chain constant for
// the largest eth_getLogs span attempted before a provider is expected to
// reject it. A filter's own MaxBlockRange, when set, overrides this.
func DefaultMaxBlockRange(chainID uint64, rpcURL string) uint64 {
	switch chainID {
	case 1, 3, 4, 5, 42, 11155111: // Ethereum mainnet + legacy testnets + Sepolia
		return 2000
	}
	if strings.Contains(rpcURL, "quiknode.pro") {
		return 10000
	}
	return 50000
}

// Ethereum mainnet-family chain IDs share a 32-block finality assumption.
var ethereumFamily = map[uint64]bool{
	1: true, 3: true, 4: true, 5: true, 42: true, 11155111: true,
}

// Optimism family (+ Zora, which is an OP-stack chain) finalizes fast.
var optimismFamily = map[uint64]bool{
	10: true, 420: true, 11155420: true, // Optimism mainnet/goerli/sepolia
	7777777: true, // Zora
}

// Polygon family.
var polygonFamily = map[uint64]bool{
	137: true, 80001: true, 80002: true,
}

// Arbitrum family.
var arbitrumFamily = map[uint64]bool{
	42161: true, 421613: true, 421614: true,
}

// FinalityBlockCount reproduces the spec's per-chain finality depth constant.
func FinalityBlockCount(chainID uint64) uint64 {
	switch {
	case ethereumFamily[chainID]:
		return 32
	case optimismFamily[chainID]:
		return 5
	case polygonFamily[chainID]:
		return 100
	case arbitrumFamily[chainID]:
		return 40
	default:
		return 5
	}
}
