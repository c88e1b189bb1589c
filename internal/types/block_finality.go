package types

import "fmt"

// BlockFinality is the block tag that defines the chain head when a fetch follows the chain.
type BlockFinality string

const (
	// FinalityLatest follows the newest block, which may still be reorganised.
	FinalityLatest BlockFinality = "latest"

	// FinalitySafe follows the safe head, unlikely to be reorganised.
	FinalitySafe BlockFinality = "safe"

	// FinalityFinalized follows the finalized checkpoint.
	FinalityFinalized BlockFinality = "finalized"
)

func (f BlockFinality) String() string {
	return string(f)
}

// Tagged reports whether the head has to be looked up by block tag rather than
// read with eth_blockNumber.
func (f BlockFinality) Tagged() bool {
	return f == FinalitySafe || f == FinalityFinalized
}

// ParseBlockFinality parses a configured finality. An empty string means latest.
func ParseBlockFinality(s string) (BlockFinality, error) {
	switch f := BlockFinality(s); f {
	case "":
		return FinalityLatest, nil
	case FinalityLatest, FinalitySafe, FinalityFinalized:
		return f, nil
	default:
		return "", fmt.Errorf("invalid block finality: %q (must be one of: latest, safe, finalized)", s)
	}
}
