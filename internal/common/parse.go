package common

import (
	"fmt"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseUint64orHex converts the given uint64 string into the number.
// It can parse the string with 0x prefix as well.
func ParseUint64orHex(val *string) (uint64, error) {
	if val == nil {
		return 0, nil
	}

	str := *val
	base := 10

	if strings.HasPrefix(str, "0x") {
		str = str[2:]
		base = 16
	}

	return strconv.ParseUint(str, base, 64)
}

// ParseAddress parses a hex encoded contract address, rejecting malformed input
// instead of silently truncating it the way common.HexToAddress does.
func ParseAddress(s string) (ethcommon.Address, error) {
	s = strings.TrimSpace(s)
	if !ethcommon.IsHexAddress(s) {
		return ethcommon.Address{}, fmt.Errorf("invalid address: %q", s)
	}

	return ethcommon.HexToAddress(s), nil
}

// ParseHash parses a 0x prefixed 32-byte hex value such as an event topic.
func ParseHash(s string) (ethcommon.Hash, error) {
	s = strings.TrimSpace(s)

	b, err := hexutil.Decode(s)
	if err != nil {
		return ethcommon.Hash{}, fmt.Errorf("invalid hash %q: %w", s, err)
	}

	if len(b) != ethcommon.HashLength {
		return ethcommon.Hash{}, fmt.Errorf("invalid hash %q: expected %d bytes, got %d",
			s, ethcommon.HashLength, len(b))
	}

	return ethcommon.BytesToHash(b), nil
}

func ToLowerWithTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
