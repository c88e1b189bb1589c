package store

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/logrange/pkg/fetcher"
)

const logColumns = `id, address, block_number, block_hash, tx_hash, tx_index, log_index,
	topic0, topic1, topic2, topic3, data`

const runColumns = `id, address, topics, from_block, to_block, last_block_reached,
	logs_count, abandoned, created_at`

// dbLog represents a log entry in the database
type dbLog struct {
	ID          int64          `meddler:"id,pk"`
	Address     common.Address `meddler:"address,address"`
	BlockNumber uint64         `meddler:"block_number"`
	BlockHash   common.Hash    `meddler:"block_hash,hash"`
	TxHash      common.Hash    `meddler:"tx_hash,hash"`
	TxIndex     uint           `meddler:"tx_index"`
	LogIndex    uint           `meddler:"log_index"`
	Topic0      *common.Hash   `meddler:"topic0,hash"`
	Topic1      *common.Hash   `meddler:"topic1,hash"`
	Topic2      *common.Hash   `meddler:"topic2,hash"`
	Topic3      *common.Hash   `meddler:"topic3,hash"`
	Data        []byte         `meddler:"data"`
}

// FetchRun is the record of one consumed fetch.
type FetchRun struct {
	ID               int64                `meddler:"id,pk"`
	Address          common.Address       `meddler:"address,address"`
	Topics           fetcher.TopicFilter  `meddler:"topics,json"`
	FromBlock        uint64               `meddler:"from_block"`
	ToBlock          *uint64              `meddler:"to_block"`
	LastBlockReached uint64               `meddler:"last_block_reached"`
	LogsCount        int                  `meddler:"logs_count"`
	Abandoned        []fetcher.QueryRange `meddler:"abandoned,json"`
	CreatedAt        time.Time            `meddler:"created_at,utctime"`
}
