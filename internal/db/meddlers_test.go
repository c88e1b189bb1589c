package db

import (
	"database/sql"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestAddressMeddler(t *testing.T) {
	m := AddressMeddler{parse: common.HexToAddress}
	addr := common.HexToAddress("0xA700b4eB416Be35b2911fd5Dee80678ff64fF6C9")

	v, err := m.PreWrite(addr)
	require.NoError(t, err)
	require.Equal(t, addr.Hex(), v)

	v, err = m.PreWrite((*common.Address)(nil))
	require.NoError(t, err)
	require.Nil(t, v)

	_, err = m.PreWrite("not an address")
	require.Error(t, err)

	var got common.Address
	require.NoError(t, m.PostRead(&got, &sql.NullString{String: addr.Hex(), Valid: true}))
	require.Equal(t, addr, got)

	var gotPtr *common.Address
	require.NoError(t, m.PostRead(&gotPtr, &sql.NullString{}))
	require.Nil(t, gotPtr)

	require.Error(t, m.PostRead(new(string), &sql.NullString{}))
}

func TestHashMeddler(t *testing.T) {
	m := HashMeddler{parse: common.HexToHash}
	hash := common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

	v, err := m.PreWrite(&hash)
	require.NoError(t, err)
	require.Equal(t, hash.Hex(), v)

	var gotPtr *common.Hash
	require.NoError(t, m.PostRead(&gotPtr, &sql.NullString{String: hash.Hex(), Valid: true}))
	require.NotNil(t, gotPtr)
	require.Equal(t, hash, *gotPtr)

	got := hash
	require.NoError(t, m.PostRead(&got, &sql.NullString{}))
	require.Equal(t, common.Hash{}, got)

	require.Error(t, m.PostRead(&got, new(string)))
}
