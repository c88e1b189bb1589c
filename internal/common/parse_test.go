package common

import (
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestParseUint64orHex(t *testing.T) {
	tests := []struct {
		name    string
		input   *string
		want    uint64
		wantErr bool
	}{
		{name: "nil input", input: nil, want: 0},
		{name: "decimal string", input: strPtr("16931880"), want: 16931880},
		{name: "hex string", input: strPtr("0x7dfd25"), want: 0x7dfd25},
		{name: "uppercase hex", input: strPtr("0xDEADBEEF"), want: 0xDEADBEEF},
		{name: "invalid decimal", input: strPtr("12abc"), wantErr: true},
		{name: "invalid hex", input: strPtr("0xGHIJK"), wantErr: true},
		{name: "empty string", input: strPtr(""), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUint64orHex(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress(" 0xA700b4eB416Be35b2911fd5Dee80678ff64fF6C9 ")
	require.NoError(t, err)
	require.Equal(t, ethcommon.HexToAddress("0xA700b4eB416Be35b2911fd5Dee80678ff64fF6C9"), addr)

	_, err = ParseAddress("0x1234")
	require.ErrorContains(t, err, "invalid address")

	_, err = ParseAddress("")
	require.Error(t, err)
}

func TestParseHash(t *testing.T) {
	const transferSig = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

	h, err := ParseHash(transferSig)
	require.NoError(t, err)
	require.Equal(t, ethcommon.HexToHash(transferSig), h)

	_, err = ParseHash("0xaaaa")
	require.ErrorContains(t, err, "expected 32 bytes")

	_, err = ParseHash("ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	require.Error(t, err)

	_, err = ParseHash("0xzz")
	require.Error(t, err)
}

func TestToLowerWithTrim(t *testing.T) {
	require.Equal(t, "debug", ToLowerWithTrim("  DEBUG "))
	require.Equal(t, "", ToLowerWithTrim(""))
}

func strPtr(s string) *string {
	return &s
}
