package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainIndexor/internal/chaintypes"
)

const defaultPageSize = 500

// queryBuilder accumulates a parameterized query with dialect-correct
// placeholders, since the keyset-pagination predicate below has too many
// argument positions to index by hand safely.
type queryBuilder struct {
	d    dialect
	buf  strings.Builder
	args []any
}

func newQueryBuilder(d dialect) *queryBuilder { return &queryBuilder{d: d} }

func (q *queryBuilder) write(s string) *queryBuilder {
	q.buf.WriteString(s)
	return q
}

func (q *queryBuilder) arg(v any) string {
	q.args = append(q.args, v)
	return q.d.placeholder(len(q.args))
}

func (q *queryBuilder) String() string { return q.buf.String() }

// filterCondition renders the SQL restriction for one LogFilter: chain plus
// optional address/topic membership, matching chaintypes.LogFilter.Matches's
// semantics (empty address/topic slot means "match any").
func filterCondition(qb *queryBuilder, f chaintypes.LogFilter) string {
	parts := []string{fmt.Sprintf("logs.chain_id = %s", qb.arg(f.ChainID))}

	if len(f.Addresses) > 0 {
		phs := make([]string, len(f.Addresses))
		for i, a := range f.Addresses {
			phs[i] = qb.arg(a.Hex())
		}
		parts = append(parts, fmt.Sprintf("logs.address IN (%s)", strings.Join(phs, ", ")))
	}

	for i, slot := range f.Topics {
		if i > 3 || len(slot.OneOf) == 0 {
			continue
		}
		phs := make([]string, len(slot.OneOf))
		for j, t := range slot.OneOf {
			phs[j] = qb.arg(t.Hex())
		}
		parts = append(parts, fmt.Sprintf("logs.topic%d IN (%s)", i, strings.Join(phs, ", ")))
	}

	return "(" + strings.Join(parts, " AND ") + ")"
}

// cursorCondition renders the strictly-greater-than keyset predicate for
// resuming after c under (timestamp, chainId, blockNumber, logIndex) ordering.
func cursorCondition(qb *queryBuilder, c chaintypes.Cursor) string {
	ts, chain, blk, idx := qb.arg(c.Timestamp), qb.arg(c.ChainID), qb.arg(c.BlockNumber), qb.arg(c.LogIndex)
	return fmt.Sprintf(
		`(blocks.timestamp > %[1]s
		  OR (blocks.timestamp = %[1]s AND logs.chain_id > %[2]s)
		  OR (blocks.timestamp = %[1]s AND logs.chain_id = %[2]s AND logs.block_number > %[3]s)
		  OR (blocks.timestamp = %[1]s AND logs.chain_id = %[2]s AND logs.block_number = %[3]s AND logs.log_index > %[4]s))`,
		ts, chain, blk, idx,
	)
}

// GetLogEvents implements the event iteration contract of spec.md §4.1.
func (s *sqlStore) GetLogEvents(ctx context.Context, q LogEventsQuery) (Page, error) {
	if len(q.Filters) == 0 {
		return Page{Metadata: PageMetadata{PageEndsAtTimestamp: q.ToTimestamp, IsLastPage: true}}, nil
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	qb := newQueryBuilder(s.d)
	qb.write(`SELECT logs.id, logs.chain_id, logs.address, logs.block_hash, logs.block_number,
		logs.transaction_hash, logs.transaction_index, logs.log_index, logs.data,
		logs.topic0, logs.topic1, logs.topic2, logs.topic3,
		blocks.timestamp, transactions.hash
		FROM logs
		LEFT JOIN blocks ON blocks.chain_id = logs.chain_id AND blocks.hash = logs.block_hash
		LEFT JOIN transactions ON transactions.chain_id = logs.chain_id AND transactions.hash = logs.transaction_hash
		WHERE (`)

	filterConds := make([]string, len(q.Filters))
	for i, f := range q.Filters {
		filterConds[i] = filterCondition(qb, f)
	}
	qb.write(strings.Join(filterConds, " OR "))
	qb.write(")")

	fromTS, toTS := qb.arg(q.FromTimestamp), qb.arg(q.ToTimestamp)
	qb.write(fmt.Sprintf(" AND (blocks.timestamp IS NULL OR (blocks.timestamp >= %s AND blocks.timestamp <= %s))", fromTS, toTS))

	if q.Cursor != nil {
		qb.write(" AND ").write(cursorCondition(qb, *q.Cursor))
	}

	qb.write(fmt.Sprintf(" ORDER BY blocks.timestamp ASC, logs.chain_id ASC, logs.block_number ASC, logs.log_index ASC LIMIT %s", qb.arg(pageSize+1)))

	rows, err := s.db.QueryContext(ctx, qb.String(), qb.args...)
	if err != nil {
		return Page{}, fmt.Errorf("eventstore: query log events: %w", err)
	}
	defer rows.Close()

	type scanned struct {
		log       chaintypes.Log
		timestamp sql.NullInt64
		txHash    sql.NullString
	}
	var all []scanned

	for rows.Next() {
		var (
			id, address, blockHash, txHash          string
			chainID, blockNumber, txIndex, logIndex uint64
			data                                    []byte
			topic0, topic1, topic2, topic3          sql.NullString
			blockTimestamp                          sql.NullInt64
			joinedTxHash                            sql.NullString
		)
		if err := rows.Scan(&id, &chainID, &address, &blockHash, &blockNumber,
			&txHash, &txIndex, &logIndex, &data,
			&topic0, &topic1, &topic2, &topic3,
			&blockTimestamp, &joinedTxHash); err != nil {
			return Page{}, fmt.Errorf("eventstore: scan log event row: %w", err)
		}

		l := chaintypes.Log{
			ChainID:          chainID,
			ID:               id,
			Address:          common.HexToAddress(address),
			BlockHash:        common.HexToHash(blockHash),
			BlockNumber:      blockNumber,
			TransactionHash:  common.HexToHash(txHash),
			TransactionIndex: txIndex,
			LogIndex:         logIndex,
			Data:             data,
		}
		l.Topic0 = nullableTopic(topic0)
		l.Topic1 = nullableTopic(topic1)
		l.Topic2 = nullableTopic(topic2)
		l.Topic3 = nullableTopic(topic3)

		all = append(all, scanned{log: l, timestamp: blockTimestamp, txHash: joinedTxHash})
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("eventstore: iterate log events: %w", err)
	}

	for _, row := range all {
		if !row.timestamp.Valid || !row.txHash.Valid {
			return Page{}, fmt.Errorf("%w: log %s", ErrJoinMiss, row.log.ID)
		}
	}

	isLastPage := len(all) <= pageSize
	if !isLastPage {
		all = all[:pageSize]
	}

	events := make([]chaintypes.Log, 0, len(all))
	counts := EventCounts{}
	var pageEndsAt uint64 = q.ToTimestamp
	var lastCursor *chaintypes.Cursor

	selectorSet := map[string]bool{}
	for _, sel := range q.IncludeEventSelectors {
		selectorSet[strings.ToLower(sel)] = true
	}

	for _, row := range all {
		ts := uint64(row.timestamp.Int64)
		row.log.Timestamp = ts
		events = append(events, row.log)

		for _, f := range q.Filters {
			if !f.Matches(row.log) {
				continue
			}
			topic0 := ""
			if row.log.Topic0 != nil {
				topic0 = strings.ToLower(row.log.Topic0.Hex())
			}
			if len(selectorSet) > 0 && !selectorSet[topic0] {
				continue
			}
			if counts[f.Name] == nil {
				counts[f.Name] = map[string]int{}
			}
			counts[f.Name][topic0]++
		}

		pageEndsAt = ts
		cur := chaintypes.Cursor{Timestamp: ts, ChainID: row.log.ChainID, BlockNumber: row.log.BlockNumber, LogIndex: row.log.LogIndex}
		lastCursor = &cur
	}

	meta := PageMetadata{Counts: counts, IsLastPage: isLastPage}
	if isLastPage {
		meta.PageEndsAtTimestamp = q.ToTimestamp
	} else {
		meta.PageEndsAtTimestamp = pageEndsAt
		meta.Cursor = lastCursor
	}

	return Page{Events: events, Metadata: meta}, nil
}

func nullableTopic(ns sql.NullString) *common.Hash {
	if !ns.Valid {
		return nil
	}
	h := common.HexToHash(ns.String)
	return &h
}
