package holders

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goran-ethernal/logrange/pkg/config"
	"github.com/goran-ethernal/logrange/pkg/fetcher"
)

const (
	// TransferEventSignatureText is the standard ERC-20 transfer event.
	TransferEventSignatureText = config.DefaultHoldersEvent

	// transferTopics is signature, from and to.
	transferTopics = 3
)

var (
	ErrNotTransfer       = errors.New("log is not a transfer event")
	ErrMalformedTransfer = errors.New("malformed transfer event")

	// TransferEventSignature is the topic0 of Transfer(address,address,uint256).
	TransferEventSignature = EventSignature(TransferEventSignatureText)

	valueArguments = mustValueArguments()
)

func mustValueArguments() abi.Arguments {
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}

	return abi.Arguments{{Name: "value", Type: uint256Type}}
}

// Transfer is a decoded Transfer(address indexed from, address indexed to, uint256 value) event.
type Transfer struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	BlockNumber uint64
	TxHash      common.Hash
}

// EventSignature returns the topic0 hash of an event signature such as "Transfer(address,address,uint256)".
func EventSignature(event string) common.Hash {
	return crypto.Keccak256Hash([]byte(event))
}

// ParseTransfer decodes a standard Transfer event.
func ParseTransfer(log types.Log) (*Transfer, error) {
	return parseTransfer(log, TransferEventSignature)
}

func parseTransfer(log types.Log, signature common.Hash) (*Transfer, error) {
	if len(log.Topics) == 0 || log.Topics[0] != signature {
		return nil, ErrNotTransfer
	}

	if len(log.Topics) != transferTopics {
		return nil, fmt.Errorf("%w: expected %d topics, got %d", ErrMalformedTransfer, transferTopics, len(log.Topics))
	}

	values, err := valueArguments.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTransfer, err)
	}

	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected value type %T", ErrMalformedTransfer, values[0])
	}

	return &Transfer{
		From:        common.BytesToAddress(log.Topics[1].Bytes()),
		To:          common.BytesToAddress(log.Topics[2].Bytes()),
		Value:       value,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
	}, nil
}

// TransferTopics builds the topic filter for transfers of the given event.
// With mintsOnly set only transfers from the zero address match.
func TransferTopics(event string, mintsOnly bool) fetcher.TopicFilter {
	topics := fetcher.TopicFilter{{EventSignature(event)}}
	if mintsOnly {
		topics = append(topics, []common.Hash{common.BytesToHash(common.Address{}.Bytes())})
	}

	return topics
}
