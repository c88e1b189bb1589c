package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/logrange/internal/db"
	"github.com/goran-ethernal/logrange/internal/logger"
	"github.com/goran-ethernal/logrange/internal/migrations"
	"github.com/goran-ethernal/logrange/pkg/config"
	"github.com/goran-ethernal/logrange/pkg/fetcher"
	"github.com/goran-ethernal/logrange/pkg/sink"
	"github.com/mattn/go-sqlite3"
	"github.com/russross/meddler"
)

// Compile-time check to ensure LogStore implements sink.Sink interface.
var _ sink.Sink = (*LogStore)(nil)

// ErrNoRun is returned when no fetch was recorded for an address.
var ErrNoRun = errors.New("no fetch run recorded")

// LogStore persists fetched logs and a record of every fetch in SQLite.
// Logs are unique by block hash and log index, so the boundary block that
// consecutive windows both return is stored once.
type LogStore struct {
	db     *sql.DB
	dbPath string
	log    *logger.Logger
}

// Open opens (or creates) the database described by cfg and applies migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*LogStore, error) {
	sqlDB, err := db.NewSQLiteDBFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open log store: %w", err)
	}

	if err := migrations.RunMigrationsDB(ctx, log, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate log store: %w", err)
	}

	return NewLogStore(sqlDB, cfg.Path, log), nil
}

// NewLogStore creates a new SQLite-backed LogStore on an already migrated database.
// The store takes ownership of the connection and closes it on Close.
func NewLogStore(sqlDB *sql.DB, dbPath string, log *logger.Logger) *LogStore {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &LogStore{
		db:     sqlDB,
		dbPath: dbPath,
		log:    log,
	}
}

// Consume stores the logs of a fetch and records the run in a single transaction.
func (s *LogStore) Consume(ctx context.Context, req fetcher.FetchRequest, res *fetcher.FetchResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	stored, duplicates := 0, 0

	for i := range res.Logs {
		if err := meddler.Insert(tx, "event_logs", ethLogToDbLog(&res.Logs[i])); err != nil {
			if isUniqueViolation(err) {
				duplicates++
				continue
			}
			return fmt.Errorf("failed to insert log %d of block %d: %w", res.Logs[i].Index, res.Logs[i].BlockNumber, err)
		}
		stored++
	}

	run := &FetchRun{
		Address:          req.Address,
		Topics:           req.Topics,
		FromBlock:        req.FromBlock,
		ToBlock:          req.ToBlock,
		LastBlockReached: res.LastBlockReached,
		LogsCount:        stored,
		Abandoned:        res.Abandoned,
		CreatedAt:        time.Now().UTC(),
	}

	if err := meddler.Insert(tx, "fetch_runs", run); err != nil {
		return fmt.Errorf("failed to record fetch run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	LogsStoredAdd(stored, duplicates)
	RunRecordedInc()

	s.log.Infof("stored %d logs for %s (%d duplicates skipped), last block reached %d",
		stored, req.Address.Hex(), duplicates, res.LastBlockReached)

	return nil
}

// GetLogs retrieves stored logs for the given address and inclusive block range.
func (s *LogStore) GetLogs(ctx context.Context, address common.Address, fromBlock, toBlock uint64) ([]types.Log, error) {
	const logsQuery = `SELECT ` + logColumns + ` FROM event_logs
		WHERE address = ? AND block_number >= ? AND block_number <= ?
		ORDER BY block_number ASC, log_index ASC`

	rows, err := s.db.QueryContext(ctx, logsQuery, address.Hex(), fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var dbLogs []*dbLog
	if err := meddler.ScanAll(rows, &dbLogs); err != nil {
		return nil, fmt.Errorf("failed to scan logs: %w", err)
	}

	logs := make([]types.Log, len(dbLogs))
	for i, dl := range dbLogs {
		logs[i] = dbLogToEthLog(dl)
	}

	return logs, nil
}

// LastRun returns the most recent fetch recorded for the address, or ErrNoRun.
func (s *LogStore) LastRun(ctx context.Context, address common.Address) (*FetchRun, error) {
	const runQuery = `SELECT ` + runColumns + ` FROM fetch_runs
		WHERE address = ? ORDER BY id DESC LIMIT 1`

	rows, err := s.db.QueryContext(ctx, runQuery, address.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to query fetch runs: %w", err)
	}
	defer rows.Close()

	run := new(FetchRun)
	if err := meddler.ScanRow(rows, run); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w for %s", ErrNoRun, address.Hex())
		}
		return nil, fmt.Errorf("failed to scan fetch run: %w", err)
	}

	return run, nil
}

// Close compacts the database and closes the connection.
func (s *LogStore) Close() error {
	if err := db.Compact(context.Background(), s.db, s.dbPath, s.log); err != nil {
		s.log.Warnf("failed to compact log store: %v", err)
	}

	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	driverErr, _ := meddler.DriverErr(err)

	var sqliteErr sqlite3.Error
	if errors.As(driverErr, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}

	return false
}

// ethLogToDbLog converts an Ethereum log to a database log.
func ethLogToDbLog(log *types.Log) *dbLog {
	dl := &dbLog{
		Address:     log.Address,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		TxIndex:     log.TxIndex,
		LogIndex:    log.Index,
		Data:        log.Data,
	}

	slots := []**common.Hash{&dl.Topic0, &dl.Topic1, &dl.Topic2, &dl.Topic3}
	for i, topic := range log.Topics {
		if i >= len(slots) {
			break
		}
		*slots[i] = &topic
	}

	return dl
}

// dbLogToEthLog converts a database log to an Ethereum log.
func dbLogToEthLog(dl *dbLog) types.Log {
	log := types.Log{
		Address:     dl.Address,
		BlockNumber: dl.BlockNumber,
		BlockHash:   dl.BlockHash,
		TxHash:      dl.TxHash,
		TxIndex:     dl.TxIndex,
		Index:       dl.LogIndex,
		Data:        dl.Data,
		Topics:      []common.Hash{},
	}

	for _, topic := range []*common.Hash{dl.Topic0, dl.Topic1, dl.Topic2, dl.Topic3} {
		if topic == nil {
			break
		}
		log.Topics = append(log.Topics, *topic)
	}

	return log
}
