package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
	"github.com/goran-ethernal/ChainIndexor/internal/db"
	"github.com/goran-ethernal/ChainIndexor/internal/eventstore/migrations"
	"github.com/goran-ethernal/ChainIndexor/internal/logger"
	"github.com/goran-ethernal/ChainIndexor/internal/metrics"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/russross/meddler"
)

// sqlStore is the shared implementation behind both backends: every query
// here is dialect-agnostic except for placeholder style, held in d.
type sqlStore struct {
	db  *sql.DB
	d   dialect
	log *logger.Logger

	chainLocksMu sync.Mutex
	chainLocks   map[uint64]*sync.RWMutex
}

var _ Store = (*sqlStore)(nil)

// NewSQLiteStore opens the event store against a SQLite *sql.DB (the caller
// owns connection setup, see internal/db.NewSQLiteDBFromConfig).
func NewSQLiteStore(sqlDB *sql.DB, log *logger.Logger) Store {
	return &sqlStore{db: sqlDB, d: sqliteDialect(), log: log, chainLocks: map[uint64]*sync.RWMutex{}}
}

// NewPostgresStore opens the event store against a Postgres *sql.DB (the
// caller dials via pgx/v5/stdlib: sql.Open("pgx", dsn)).
func NewPostgresStore(sqlDB *sql.DB, log *logger.Logger) Store {
	return &sqlStore{db: sqlDB, d: postgresDialect(), log: log, chainLocks: map[uint64]*sync.RWMutex{}}
}

func (s *sqlStore) Close() error { return s.db.Close() }

// Migrate applies the embedded migration set for this store's dialect, the
// same db.RunMigrationsDBDialect entrypoint the teacher's downloader uses.
func (s *sqlStore) Migrate(ctx context.Context) error {
	set := migrations.SQLite
	if s.d.name == "postgres" {
		set = migrations.Postgres
	}
	return db.RunMigrationsDBDialect(s.log, s.db, set, s.d.name, migrate.Up, db.NoLimitMigrations)
}

// lockChain returns the per-chainId advisory lock (spec.md §4.1 realization),
// the same shape as the teacher's db.MaintenanceCoordinator.opLock.
func (s *sqlStore) lockChain(chainID uint64) *sync.RWMutex {
	s.chainLocksMu.Lock()
	defer s.chainLocksMu.Unlock()
	l, ok := s.chainLocks[chainID]
	if !ok {
		l = &sync.RWMutex{}
		s.chainLocks[chainID] = l
	}
	return l
}

// instrument records a chainindexor_db_* metric trio around fn, the same
// operation/duration/error-type shape internal/metrics.DBQueryInc,
// DBQueryDuration, and DBErrorsInc expose.
func (s *sqlStore) instrument(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.DBQueryInc(s.d.name, operation)
	metrics.DBQueryDuration(s.d.name, operation, time.Since(start))
	if err != nil {
		metrics.DBErrorsInc(s.d.name, operation)
	}
	return err
}

func (s *sqlStore) InsertHistoricalLogs(ctx context.Context, chainID uint64, logs []chaintypes.Log) error {
	return s.instrument("insert_historical_logs", func() error { return s.insertHistoricalLogs(ctx, chainID, logs) })
}

func (s *sqlStore) insertHistoricalLogs(ctx context.Context, chainID uint64, logs []chaintypes.Log) error {
	if len(logs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("eventstore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, l := range logs {
		if err := s.upsertLogIgnoreConflict(tx, logToRow(chainID, l)); err != nil {
			return fmt.Errorf("eventstore: insert log %s: %w", l.ID, err)
		}
	}

	return tx.Commit()
}

func (s *sqlStore) upsertLogIgnoreConflict(tx *sql.Tx, row *dbLog) error {
	cols, err := meddler.Columns(row, true)
	if err != nil {
		return err
	}
	vals, err := meddler.Values(row, true)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		"INSERT INTO logs (%s) VALUES (%s) ON CONFLICT (id) DO NOTHING",
		joinColumns(cols), s.d.placeholders(len(cols)),
	)
	_, err = tx.Exec(query, vals...)
	return err
}

func (s *sqlStore) InsertHistoricalBlock(ctx context.Context, chainID uint64, block chaintypes.Block, txs []chaintypes.Transaction, opts HistoricalBlockOpts) error {
	return s.instrument("insert_historical_block", func() error {
		return s.insertHistoricalBlock(ctx, chainID, block, txs, opts)
	})
}

func (s *sqlStore) insertHistoricalBlock(ctx context.Context, chainID uint64, block chaintypes.Block, txs []chaintypes.Transaction, opts HistoricalBlockOpts) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("eventstore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.upsertBlock(tx, blockToRow(chainID, block)); err != nil {
		return fmt.Errorf("eventstore: insert block %s: %w", block.Hash, err)
	}
	for _, t := range txs {
		if err := s.upsertTransaction(tx, txToRow(chainID, t)); err != nil {
			return fmt.Errorf("eventstore: insert tx %s: %w", t.Hash, err)
		}
	}

	insertRange := fmt.Sprintf(
		"INSERT INTO cached_ranges (filter_key, start_block, end_block, end_block_timestamp) VALUES (%s)",
		s.d.placeholders(4),
	)
	if _, err := tx.Exec(insertRange, opts.FilterKey, opts.BlockNumberToCacheFrom, block.Number, block.Timestamp); err != nil {
		return fmt.Errorf("eventstore: insert cached range: %w", err)
	}

	return tx.Commit()
}

func (s *sqlStore) InsertRealtimeBlock(ctx context.Context, chainID uint64, block chaintypes.Block, txs []chaintypes.Transaction, logs []chaintypes.Log) error {
	return s.instrument("insert_realtime_block", func() error {
		return s.insertRealtimeBlock(ctx, chainID, block, txs, logs)
	})
}

func (s *sqlStore) insertRealtimeBlock(ctx context.Context, chainID uint64, block chaintypes.Block, txs []chaintypes.Transaction, logs []chaintypes.Log) error {
	lock := s.lockChain(chainID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("eventstore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.upsertBlock(tx, blockToRow(chainID, block)); err != nil {
		return fmt.Errorf("eventstore: insert realtime block %s: %w", block.Hash, err)
	}
	for _, t := range txs {
		if err := s.upsertTransaction(tx, txToRow(chainID, t)); err != nil {
			return fmt.Errorf("eventstore: insert realtime tx %s: %w", t.Hash, err)
		}
	}
	for _, l := range logs {
		if err := s.upsertLogIgnoreConflict(tx, logToRow(chainID, l)); err != nil {
			return fmt.Errorf("eventstore: insert realtime log %s: %w", l.ID, err)
		}
	}

	return tx.Commit()
}

func (s *sqlStore) upsertBlock(tx *sql.Tx, row *dbBlock) error {
	cols, err := meddler.Columns(row, true)
	if err != nil {
		return err
	}
	vals, err := meddler.Values(row, true)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		"INSERT INTO blocks (%s) VALUES (%s) ON CONFLICT (chain_id, hash) DO NOTHING",
		joinColumns(cols), s.d.placeholders(len(cols)),
	)
	_, err = tx.Exec(query, vals...)
	return err
}

func (s *sqlStore) upsertTransaction(tx *sql.Tx, row *dbTransaction) error {
	cols, err := meddler.Columns(row, true)
	if err != nil {
		return err
	}
	vals, err := meddler.Values(row, true)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		"INSERT INTO transactions (%s) VALUES (%s) ON CONFLICT (chain_id, hash) DO NOTHING",
		joinColumns(cols), s.d.placeholders(len(cols)),
	)
	_, err = tx.Exec(query, vals...)
	return err
}

func (s *sqlStore) DeleteRealtimeData(ctx context.Context, chainID uint64, fromBlockNumber uint64) error {
	lock := s.lockChain(chainID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("eventstore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		fmt.Sprintf("DELETE FROM logs WHERE chain_id = %s AND block_number >= %s", s.d.placeholder(1), s.d.placeholder(2)),
		fmt.Sprintf("DELETE FROM transactions WHERE chain_id = %s AND block_number >= %s", s.d.placeholder(1), s.d.placeholder(2)),
		fmt.Sprintf("DELETE FROM blocks WHERE chain_id = %s AND number >= %s", s.d.placeholder(1), s.d.placeholder(2)),
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, chainID, fromBlockNumber); err != nil {
			return fmt.Errorf("eventstore: delete realtime data: %w", err)
		}
	}

	return tx.Commit()
}

// MergeLogFilterCachedRanges merges the leading contiguous run of cached
// ranges for filterKey — see store.go's doc comment for the exact contract.
func (s *sqlStore) MergeLogFilterCachedRanges(ctx context.Context, filterKey string, logFilterStartBlockNumber uint64) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("eventstore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf("SELECT * FROM cached_ranges WHERE filter_key = %s ORDER BY start_block ASC", s.d.placeholder(1))
	var rows []*dbCachedRange
	if err := meddler.QueryAll(tx, &rows, query, filterKey); err != nil {
		return 0, fmt.Errorf("eventstore: query cached ranges: %w", err)
	}
	if len(rows) == 0 || rows[0].StartBlock > logFilterStartBlockNumber {
		return 0, nil
	}

	mergedEnd := rows[0].EndBlock
	mergedEndTimestamp := rows[0].EndBlockTimestamp
	runLen := 1
	for i := 1; i < len(rows); i++ {
		if rows[i].StartBlock > mergedEnd+1 {
			break
		}
		if rows[i].EndBlock > mergedEnd {
			mergedEnd = rows[i].EndBlock
			mergedEndTimestamp = rows[i].EndBlockTimestamp
		}
		runLen++
	}

	if runLen > 1 {
		deleteQuery := fmt.Sprintf(
			"DELETE FROM cached_ranges WHERE filter_key = %s AND start_block >= %s AND start_block <= %s",
			s.d.placeholder(1), s.d.placeholder(2), s.d.placeholder(3),
		)
		if _, err := tx.Exec(deleteQuery, filterKey, rows[0].StartBlock, rows[runLen-1].StartBlock); err != nil {
			return 0, fmt.Errorf("eventstore: delete merged ranges: %w", err)
		}
		insertQuery := fmt.Sprintf(
			"INSERT INTO cached_ranges (filter_key, start_block, end_block, end_block_timestamp) VALUES (%s)",
			s.d.placeholders(4),
		)
		if _, err := tx.Exec(insertQuery, filterKey, rows[0].StartBlock, mergedEnd, mergedEndTimestamp); err != nil {
			return 0, fmt.Errorf("eventstore: insert merged range: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return mergedEndTimestamp, nil
}

func (s *sqlStore) GetLogFilterCachedRanges(ctx context.Context, filterKey string) ([]chaintypes.CachedRange, error) {
	query := fmt.Sprintf("SELECT * FROM cached_ranges WHERE filter_key = %s ORDER BY start_block ASC", s.d.placeholder(1))
	var rows []*dbCachedRange
	if err := meddler.QueryAll(s.db, &rows, query, filterKey); err != nil {
		return nil, fmt.Errorf("eventstore: query cached ranges: %w", err)
	}
	out := make([]chaintypes.CachedRange, len(rows))
	for i, r := range rows {
		out[i] = r.toChaintype()
	}
	return out, nil
}

// maxContractReadResults bounds the immutable contract_read_results cache
// (SPEC_FULL.md §9): crossing it on insert evicts the oldest rows by
// insertedAt first, since the cache has no other expiry mechanism. A var,
// not a const, so tests can shrink it instead of inserting 100k rows.
var maxContractReadResults = 100_000

func (s *sqlStore) InsertContractReadResult(ctx context.Context, r ContractReadResult) error {
	query := fmt.Sprintf(
		"INSERT INTO contract_read_results (chain_id, address, block_number, calldata, result, inserted_at) VALUES (%s) ON CONFLICT (chain_id, address, block_number, calldata) DO NOTHING",
		s.d.placeholders(6),
	)
	if _, err := s.db.ExecContext(ctx, query, r.ChainID, r.Address, r.BlockNumber, r.Calldata, r.Result, r.InsertedAt); err != nil {
		return fmt.Errorf("eventstore: insert contract read result: %w", err)
	}
	if err := s.evictContractReadResults(ctx); err != nil {
		return fmt.Errorf("eventstore: evict contract read results: %w", err)
	}
	return nil
}

// evictContractReadResults deletes the oldest-insertedAt rows once the table
// exceeds maxContractReadResults, keeping the cache's storage bounded.
func (s *sqlStore) evictContractReadResults(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contract_read_results").Scan(&count); err != nil {
		return err
	}
	if count <= maxContractReadResults {
		return nil
	}

	query := fmt.Sprintf(
		`DELETE FROM contract_read_results WHERE (chain_id, address, block_number, calldata) NOT IN (
			SELECT chain_id, address, block_number, calldata FROM contract_read_results
			ORDER BY inserted_at DESC LIMIT %s
		)`,
		s.d.placeholder(1),
	)
	_, err := s.db.ExecContext(ctx, query, maxContractReadResults)
	return err
}

func (s *sqlStore) GetContractReadResult(ctx context.Context, chainID uint64, address string, blockNumber uint64, calldata []byte) ([]byte, bool, error) {
	query := fmt.Sprintf(
		"SELECT result FROM contract_read_results WHERE chain_id = %s AND address = %s AND block_number = %s AND calldata = %s",
		s.d.placeholder(1), s.d.placeholder(2), s.d.placeholder(3), s.d.placeholder(4),
	)
	var result []byte
	err := s.db.QueryRowContext(ctx, query, chainID, address, blockNumber, calldata).Scan(&result)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("eventstore: get contract read result: %w", err)
	}
	return result, true, nil
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
