package derivedstore

import (
	"context"
	"testing"

	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
	"github.com/goran-ethernal/ChainIndexor/internal/config"
	"github.com/goran-ethernal/ChainIndexor/internal/db"
	"github.com/goran-ethernal/ChainIndexor/internal/logger"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) Store {
	t.Helper()

	tmpDir := t.TempDir()
	dbConfig := config.DatabaseConfig{Directory: tmpDir, JournalMode: "WAL"}
	dbConfig.ApplyDefaults()

	sqlDB, err := db.NewSQLiteDBFromConfig(dbConfig, "derivedstore_test.db")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	store := NewSQLiteStore(sqlDB, logger.GetDefaultLogger())
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLStore_PutAndGetLive(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, "Account", "0xA", []byte(`{"balance":100}`), 500))
	require.NoError(t, tx.Commit())

	row, ok, err := store.GetLive(ctx, "Account", "0xA")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(500), row.ValidFrom)
	require.Equal(t, chaintypes.ForeverTimestamp, row.ValidTo)
	require.Equal(t, []byte(`{"balance":100}`), row.Data)
}

func TestSQLStore_PutSupersedesPriorVersion(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tx1, err := store.BeginTx(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, tx1.Put(ctx, "Account", "0xA", []byte(`{"balance":100}`), 500))
	require.NoError(t, tx1.Commit())

	tx2, err := store.BeginTx(ctx, 500)
	require.NoError(t, err)
	require.NoError(t, tx2.Put(ctx, "Account", "0xA", []byte(`{"balance":150}`), 700))
	require.NoError(t, tx2.Commit())

	row, ok, err := store.GetLive(ctx, "Account", "0xA")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(700), row.ValidFrom)
	require.Equal(t, []byte(`{"balance":150}`), row.Data)
}

func TestSQLStore_TxReadYourOwnWrite(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, "Account", "0xA", []byte(`{"balance":1}`), 10))
	require.NoError(t, tx.Put(ctx, "Account", "0xA", []byte(`{"balance":2}`), 20))

	row, ok, err := tx.Get(ctx, "Account", "0xA")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`{"balance":2}`), row.Data)
	require.NoError(t, tx.Commit())
}

func TestSQLStore_TxRollbackDiscardsWrites(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, "Account", "0xA", []byte(`{"balance":1}`), 10))
	require.NoError(t, tx.Rollback())

	_, ok, err := store.GetLive(ctx, "Account", "0xA")
	require.NoError(t, err)
	require.False(t, ok)
}

// TestSQLStore_RollbackToReproducesSpecExample realizes spec.md §4.5's worked
// example: Account{0xA, balance=100} at validFrom=500; balance=150 written at
// validFrom=700; reorg to commonAncestorTimestamp=600 must delete the 150 row
// and reopen the 100 row.
func TestSQLStore_RollbackToReproducesSpecExample(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tx1, err := store.BeginTx(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, tx1.Put(ctx, "Account", "0xA", []byte(`{"balance":100}`), 500))
	require.NoError(t, tx1.Commit())

	tx2, err := store.BeginTx(ctx, 500)
	require.NoError(t, err)
	require.NoError(t, tx2.Put(ctx, "Account", "0xA", []byte(`{"balance":150}`), 700))
	require.NoError(t, tx2.Commit())

	require.NoError(t, store.RollbackTo(ctx, 600))

	row, ok, err := store.GetLive(ctx, "Account", "0xA")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(500), row.ValidFrom)
	require.Equal(t, chaintypes.ForeverTimestamp, row.ValidTo)
	require.Equal(t, []byte(`{"balance":100}`), row.Data)
}

func TestSQLStore_Reset(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, "Account", "0xA", []byte(`{"balance":1}`), 10))
	require.NoError(t, tx.Commit())

	require.NoError(t, store.Reset(ctx))

	_, ok, err := store.GetLive(ctx, "Account", "0xA")
	require.NoError(t, err)
	require.False(t, ok)
}
