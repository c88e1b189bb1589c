package db

import (
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

func init() {
	meddler.Default = meddler.SQLite
	meddler.Register("address", AddressMeddler{parse: common.HexToAddress})
	meddler.Register("hash", HashMeddler{parse: common.HexToHash})
}

// AddressMeddler stores common.Address fields as hex strings.
type AddressMeddler = hexMeddler[common.Address]

// HashMeddler stores common.Hash fields as hex strings.
type HashMeddler = hexMeddler[common.Hash]

// hexMeddler converts between a hex encodable value (or a pointer to one) and a
// nullable TEXT column.
type hexMeddler[T interface{ Hex() string }] struct {
	parse func(string) T
}

func (m hexMeddler[T]) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new(sql.NullString), nil
}

func (m hexMeddler[T]) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	switch ptr := fieldAddr.(type) {
	case *T:
		var zero T
		*ptr = zero
		if ns.Valid {
			*ptr = m.parse(ns.String)
		}
	case **T:
		*ptr = nil
		if ns.Valid {
			v := m.parse(ns.String)
			*ptr = &v
		}
	default:
		return fmt.Errorf("expected *%T or **%T, got %T", *new(T), *new(T), fieldAddr)
	}

	return nil
}

func (m hexMeddler[T]) PreWrite(field interface{}) (saveValue interface{}, err error) {
	switch v := field.(type) {
	case T:
		return v.Hex(), nil
	case *T:
		if v == nil {
			return nil, nil
		}
		return (*v).Hex(), nil
	default:
		return nil, fmt.Errorf("expected %T or *%T, got %T", *new(T), *new(T), field)
	}
}
