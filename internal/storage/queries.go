package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"moneypools/internal/core"
)

// tagChunk bounds the number of bind variables in one IN clause.
const tagChunk = 500

type queries struct {
	db DBTX
}

// loadPools returns the owner's pools in insertion order. A non-empty id
// restricts the result to that pool.
func (q *queries) loadPools(ctx context.Context, owner, id string) ([]core.Pool, error) {
	query := `SELECT id, display_name, is_visible, display_color, last_updated FROM pools WHERE owner = ?`
	args := []any{owner}
	if id != "" {
		query += ` AND id = ?`
		args = append(args, id)
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pools: %w", err)
	}
	defer rows.Close()

	pools := make([]core.Pool, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			p       core.Pool
			visible int
			color   sql.NullString
			updated sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.DisplayName, &visible, &color, &updated); err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		p.IsVisible = visible != 0
		if color.Valid {
			c := color.String
			p.DisplayColor = &c
		}
		if updated.Valid {
			ts := time.Unix(0, updated.Int64).UTC()
			p.LastUpdated = &ts
		}
		p.Balance = []core.Money{}
		index[p.ID] = len(pools)
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pools: %w", err)
	}
	if len(pools) == 0 {
		return pools, nil
	}

	lineQuery := `SELECT b.pool_id, b.currency, b.amount FROM balance_lines b
		JOIN pools p ON p.id = b.pool_id
		WHERE p.owner = ?`
	lineArgs := []any{owner}
	if id != "" {
		lineQuery += ` AND b.pool_id = ?`
		lineArgs = append(lineArgs, id)
	}
	lineQuery += ` ORDER BY b.pool_id, b.position`

	lines, err := q.db.QueryContext(ctx, lineQuery, lineArgs...)
	if err != nil {
		return nil, fmt.Errorf("query balance lines: %w", err)
	}
	defer lines.Close()

	for lines.Next() {
		var poolID, code, amount string
		if err := lines.Scan(&poolID, &code, &amount); err != nil {
			return nil, fmt.Errorf("scan balance line: %w", err)
		}
		m, err := parseMoney(amount, code)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", poolID, err)
		}
		i, ok := index[poolID]
		if !ok {
			continue
		}
		pools[i].Balance = append(pools[i].Balance, m)
	}
	if err := lines.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance lines: %w", err)
	}
	return pools, nil
}

func (q *queries) insertPool(ctx context.Context, owner string, p core.Pool, now time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO pools (id, owner, display_name, is_visible, display_color, last_updated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, owner, p.DisplayName, boolToInt(p.IsVisible), nullableString(p.DisplayColor), nullableTime(p.LastUpdated), now.UnixNano())
	if err != nil {
		return fmt.Errorf("insert pool: %w", err)
	}
	return nil
}

func (q *queries) insertBalanceLine(ctx context.Context, poolID string, position int, m core.Money) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO balance_lines (pool_id, position, currency, amount) VALUES (?, ?, ?, ?)`,
		poolID, position, m.Currency.Code, m.Amount.String())
	if err != nil {
		return fmt.Errorf("insert balance line: %w", err)
	}
	return nil
}

// updateBalanceLine rewrites one line and stamps the pool as updated.
func (q *queries) updateBalanceLine(ctx context.Context, poolID string, position int, m core.Money, now time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE balance_lines SET amount = ? WHERE pool_id = ? AND position = ? AND currency = ?`,
		m.Amount.String(), poolID, position, m.Currency.Code)
	if err != nil {
		return fmt.Errorf("update balance line: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return fmt.Errorf("update balance line %s/%d: %d rows affected", poolID, position, n)
	}
	if _, err := q.db.ExecContext(ctx, `UPDATE pools SET last_updated = ? WHERE id = ?`, now.UnixNano(), poolID); err != nil {
		return fmt.Errorf("touch pool: %w", err)
	}
	return nil
}

func (q *queries) updatePoolAttributes(ctx context.Context, p core.Pool) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE pools SET display_name = ?, is_visible = ?, display_color = ? WHERE id = ?`,
		p.DisplayName, boolToInt(p.IsVisible), nullableString(p.DisplayColor), p.ID)
	if err != nil {
		return fmt.Errorf("update pool attributes: %w", err)
	}
	return nil
}

func (q *queries) insertTransaction(ctx context.Context, owner string, t core.Transaction) error {
	var original sql.NullString
	if t.OriginalCurrency != nil {
		original = sql.NullString{String: t.OriginalCurrency.Code, Valid: true}
	}
	var reporting sql.NullFloat64
	if t.AmountInReportingCurrency != nil {
		reporting = sql.NullFloat64{Float64: *t.AmountInReportingCurrency, Valid: true}
	}

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO transactions (id, owner, pool_id, amount, amount_value, currency, description, ts, is_diffuse, original_currency, amount_in_reporting_currency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, owner, t.PoolID, t.Sum.Amount.String(), t.Sum.Float64(), t.Sum.Currency.Code,
		t.Description, t.Timestamp.UnixNano(), boolToInt(t.IsDiffuse), original, reporting)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return q.replaceTags(ctx, t.ID, t.Tags)
}

func (q *queries) replaceTags(ctx context.Context, id string, tags []string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM transaction_tags WHERE transaction_id = ?`, id); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	for i, tag := range tags {
		if _, err := q.db.ExecContext(ctx,
			`INSERT INTO transaction_tags (transaction_id, position, tag) VALUES (?, ?, ?)`, id, i, tag); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}
	return nil
}

func (q *queries) updateTransactionFields(ctx context.Context, t core.Transaction) error {
	var reporting sql.NullFloat64
	if t.AmountInReportingCurrency != nil {
		reporting = sql.NullFloat64{Float64: *t.AmountInReportingCurrency, Valid: true}
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE transactions SET description = ?, ts = ?, amount_in_reporting_currency = ? WHERE id = ?`,
		t.Description, t.Timestamp.UnixNano(), reporting, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

func (q *queries) deleteTransaction(ctx context.Context, owner, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE owner = ? AND id = ?`, owner, id); err != nil {
		return fmt.Errorf("delete transaction row: %w", err)
	}
	return nil
}

func (q *queries) getTransaction(ctx context.Context, owner, id string) (core.Transaction, bool, error) {
	ts, err := q.loadTransactions(ctx, owner, core.TransactionFilter{TransactionIDs: []string{id}}, core.LatestFirst, 0, 1)
	if err != nil {
		return core.Transaction{}, false, err
	}
	if len(ts) == 0 {
		return core.Transaction{}, false, nil
	}
	return ts[0], true, nil
}

var orderClauses = map[core.TransactionOrder]string{
	core.LatestFirst:          `t.ts DESC, t.id ASC`,
	core.OldestFirst:          `t.ts ASC, t.id ASC`,
	core.LargestFirst:         `t.amount_value DESC, t.ts DESC, t.id ASC`,
	core.LargestNegativeFirst: `t.amount_value ASC, t.ts DESC, t.id ASC`,
}

func (q *queries) loadTransactions(ctx context.Context, owner string, f core.TransactionFilter, order core.TransactionOrder, offset, count int) ([]core.Transaction, error) {
	where, args, empty := filterClause(owner, f)
	if empty {
		return []core.Transaction{}, nil
	}
	orderBy, ok := orderClauses[order]
	if !ok {
		orderBy = orderClauses[core.LatestFirst]
	}
	if offset < 0 {
		offset = 0
	}
	limit := -1
	if count > 0 {
		limit = count
	}

	query := `SELECT t.id, t.pool_id, t.amount, t.currency, t.description, t.ts, t.is_diffuse, t.original_currency, t.amount_in_reporting_currency
		FROM transactions t WHERE ` + where + ` ORDER BY ` + orderBy + ` LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		var (
			t         core.Transaction
			amount    string
			code      string
			ts        int64
			diffuse   int
			original  sql.NullString
			reporting sql.NullFloat64
		)
		if err := rows.Scan(&t.ID, &t.PoolID, &amount, &code, &t.Description, &ts, &diffuse, &original, &reporting); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Sum, err = parseMoney(amount, code); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		t.Timestamp = time.Unix(0, ts).UTC()
		t.IsDiffuse = diffuse != 0
		if original.Valid {
			c, err := core.ParseCurrency(original.String)
			if err != nil {
				return nil, fmt.Errorf("transaction %s: %w", t.ID, err)
			}
			t.OriginalCurrency = &c
		}
		if reporting.Valid {
			v := reporting.Float64
			t.AmountInReportingCurrency = &v
		}
		t.Tags = []string{}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	rows.Close()

	if err := q.attachTags(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *queries) attachTags(ctx context.Context, ts []core.Transaction) error {
	index := make(map[string]int, len(ts))
	for i, t := range ts {
		index[t.ID] = i
	}
	for start := 0; start < len(ts); start += tagChunk {
		end := min(start+tagChunk, len(ts))
		args := make([]any, 0, end-start)
		for _, t := range ts[start:end] {
			args = append(args, t.ID)
		}
		rows, err := q.db.QueryContext(ctx,
			`SELECT transaction_id, tag FROM transaction_tags WHERE transaction_id IN (`+placeholders(len(args))+`)
			ORDER BY transaction_id, position`, args...)
		if err != nil {
			return fmt.Errorf("query tags: %w", err)
		}
		for rows.Next() {
			var id, tag string
			if err := rows.Scan(&id, &tag); err != nil {
				rows.Close()
				return fmt.Errorf("scan tag: %w", err)
			}
			if i, ok := index[id]; ok {
				ts[i].Tags = append(ts[i].Tags, tag)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("iterate tags: %w", err)
		}
	}
	return nil
}

// filterClause renders f as a WHERE expression. empty reports a filter that
// can match nothing.
func filterClause(owner string, f core.TransactionFilter) (where string, args []any, empty bool) {
	conds := []string{`t.owner = ?`}
	args = []any{owner}

	if f.MinTimestamp != nil {
		conds = append(conds, `t.ts >= ?`)
		args = append(args, f.MinTimestamp.UnixNano())
	}
	if f.MaxTimestamp != nil {
		conds = append(conds, `t.ts <= ?`)
		args = append(args, f.MaxTimestamp.UnixNano())
	}
	if f.After != nil {
		conds = append(conds, `t.ts > ?`)
		args = append(args, f.After.UnixNano())
	}
	if f.PoolIDs != nil {
		if len(f.PoolIDs) == 0 {
			return "", nil, true
		}
		conds = append(conds, `t.pool_id IN (`+placeholders(len(f.PoolIDs))+`)`)
		for _, id := range f.PoolIDs {
			args = append(args, id)
		}
	}
	if f.TransactionIDs != nil {
		if len(f.TransactionIDs) == 0 {
			return "", nil, true
		}
		conds = append(conds, `t.id IN (`+placeholders(len(f.TransactionIDs))+`)`)
		for _, id := range f.TransactionIDs {
			args = append(args, id)
		}
	}
	if f.UntaggedOnly {
		conds = append(conds, `NOT EXISTS (SELECT 1 FROM transaction_tags g WHERE g.transaction_id = t.id)`)
	}
	if f.IsDiffuse != nil {
		conds = append(conds, `t.is_diffuse = ?`)
		args = append(args, boolToInt(*f.IsDiffuse))
	}
	return strings.Join(conds, ` AND `), args, false
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func parseMoney(amount, code string) (core.Money, error) {
	c, err := core.ParseCurrency(code)
	if err != nil {
		return core.Money{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Money{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return core.NewMoney(d, c), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
