package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goran-ethernal/logrange/internal/logger"
)

const bytesInMB = 1024 * 1024

// Compact checkpoints the WAL into the main database file and records the resulting size.
// It is meant to run once a batch of writes is done, before the database is closed.
func Compact(ctx context.Context, db *sql.DB, dbPath string, log *logger.Logger) error {
	start := time.Now()

	initialSize, err := DBTotalSize(dbPath)
	if err != nil {
		log.Warnf("failed to get initial DB size: %v", err)
	}

	if err := walCheckpoint(ctx, db, log); err != nil {
		CompactionErrorInc()
		return fmt.Errorf("WAL checkpoint failed: %w", err)
	}

	finalSize, err := DBTotalSize(dbPath)
	if err != nil {
		log.Warnf("failed to get final DB size: %v", err)
	}

	CompactionDurationLog(time.Since(start))
	DBSizeLog(finalSize)

	log.Infof("database compacted in %v, size %d MB (was %d MB)",
		time.Since(start), finalSize/bytesInMB, initialSize/bytesInMB)

	return nil
}

// walCheckpoint truncates the WAL file. Databases not in WAL mode are left alone.
func walCheckpoint(ctx context.Context, db *sql.DB, log *logger.Logger) error {
	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("failed to check journal mode: %w", err)
	}

	if !strings.EqualFold(mode, "wal") {
		log.Debugf("database in %s mode, skipping WAL checkpoint", mode)
		return nil
	}

	var busyCount, logFrames, checkpointedFrames int
	err := db.QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busyCount, &logFrames, &checkpointedFrames)
	if err != nil {
		return fmt.Errorf("failed to execute WAL checkpoint: %w", err)
	}

	WALCheckpointInc()

	if busyCount > 0 {
		log.Warnf("WAL checkpoint encountered %d busy pages (some pages not checkpointed)", busyCount)
	}

	log.Debugf("WAL checkpoint complete - log_frames: %d, checkpointed: %d", logFrames, checkpointedFrames)

	return nil
}

// DBTotalSize returns the size of the database file plus its -wal and -shm companions.
// Missing files count as zero.
func DBTotalSize(dbPath string) (int64, error) {
	var total int64

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return 0, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		total += info.Size()
	}

	return total, nil
}
