package derivedstore

import (
	"database/sql/driver"
	"fmt"

	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
)

// validTo stores chaintypes.ForeverTimestamp (^uint64(0)) as SQL NULL, since
// it overflows a signed BIGINT column — the standard temporal-table idiom of
// using NULL for "still valid." Implements driver.Valuer/sql.Scanner so
// meddler passes it straight through to database/sql without needing a
// registered converter.
type validTo uint64

func (v validTo) Value() (driver.Value, error) {
	if uint64(v) == chaintypes.ForeverTimestamp {
		return nil, nil
	}
	return int64(v), nil
}

func (v *validTo) Scan(src any) error {
	if src == nil {
		*v = validTo(chaintypes.ForeverTimestamp)
		return nil
	}
	i, ok := src.(int64)
	if !ok {
		return fmt.Errorf("derivedstore: unsupported valid_to scan type %T", src)
	}
	*v = validTo(uint64(i))
	return nil
}

// dbEntityRow mirrors chaintypes.DerivedEntityRow.
type dbEntityRow struct {
	EntityName string  `meddler:"entity_name"`
	ID         string  `meddler:"id"`
	Data       []byte  `meddler:"data"`
	ValidFrom  uint64  `meddler:"valid_from"`
	ValidTo    validTo `meddler:"valid_to"`
}

func (r *dbEntityRow) toChaintype() chaintypes.DerivedEntityRow {
	return chaintypes.DerivedEntityRow{
		EntityName: r.EntityName,
		ID:         r.ID,
		Data:       r.Data,
		ValidFrom:  r.ValidFrom,
		ValidTo:    uint64(r.ValidTo),
	}
}

func entityRowToRow(row chaintypes.DerivedEntityRow) *dbEntityRow {
	return &dbEntityRow{
		EntityName: row.EntityName,
		ID:         row.ID,
		Data:       row.Data,
		ValidFrom:  row.ValidFrom,
		ValidTo:    validTo(row.ValidTo),
	}
}
