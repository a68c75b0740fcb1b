package derivedstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/russross/meddler"

	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
)

// sqlTx is a per-page transactional view. Reads and writes both go through
// the underlying *sql.Tx, so a Put earlier in the same transaction is visible
// to a later Get without any in-memory overlay.
type sqlTx struct {
	tx          *sql.Tx
	d           dialect
	atTimestamp uint64
	done        bool
}

var _ Tx = (*sqlTx)(nil)

func (t *sqlTx) Get(ctx context.Context, entityName, id string) (chaintypes.DerivedEntityRow, bool, error) {
	query := fmt.Sprintf(
		"SELECT * FROM derived_entities WHERE entity_name = %s AND id = %s AND valid_to IS NULL",
		t.d.placeholder(1), t.d.placeholder(2),
	)
	var row dbEntityRow
	err := meddler.QueryRow(t.tx, &row, query, entityName, id)
	if err == sql.ErrNoRows {
		return chaintypes.DerivedEntityRow{}, false, nil
	}
	if err != nil {
		return chaintypes.DerivedEntityRow{}, false, fmt.Errorf("derivedstore: get entity in tx: %w", err)
	}
	return row.toChaintype(), true, nil
}

func (t *sqlTx) Put(ctx context.Context, entityName, id string, data []byte, validFrom uint64) error {
	closeQuery := fmt.Sprintf(
		"UPDATE derived_entities SET valid_to = %s WHERE entity_name = %s AND id = %s AND valid_to IS NULL",
		t.d.placeholder(1), t.d.placeholder(2), t.d.placeholder(3),
	)
	if _, err := t.tx.ExecContext(ctx, closeQuery, validFrom, entityName, id); err != nil {
		return fmt.Errorf("derivedstore: close prior version of %s/%s: %w", entityName, id, err)
	}

	row := entityRowToRow(chaintypes.DerivedEntityRow{
		EntityName: entityName,
		ID:         id,
		Data:       data,
		ValidFrom:  validFrom,
		ValidTo:    chaintypes.ForeverTimestamp,
	})
	cols, err := meddler.Columns(row, true)
	if err != nil {
		return err
	}
	vals, err := meddler.Values(row, true)
	if err != nil {
		return err
	}
	insertQuery := fmt.Sprintf("INSERT INTO derived_entities (%s) VALUES (%s)", joinColumns(cols), t.d.placeholders(len(cols)))
	if _, err := t.tx.ExecContext(ctx, insertQuery, vals...); err != nil {
		return fmt.Errorf("derivedstore: insert new version of %s/%s: %w", entityName, id, err)
	}
	return nil
}

func (t *sqlTx) Commit() error {
	t.done = true
	return t.tx.Commit()
}

func (t *sqlTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}
