// Package importer reads transactions from CSV exports and adds them to a
// pool through the ledger service.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"moneypools/internal/core"
	"moneypools/internal/log"
)

// Columns in order. tags is optional and ';'-separated.
var header = []string{"date", "description", "amount", "currency", "tags"}

// Row is one parsed CSV line.
type Row struct {
	Line        int
	Timestamp   time.Time
	Description string
	Sum         core.Money
	Tags        []string
}

// RowError reports a line that could not be parsed.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Parse reads all rows. A first line equal to the column names is skipped.
// Every malformed line is reported; the returned error joins them.
func Parse(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		rows []Row
		errs []error
		line int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		row, err := parseRecord(rec)
		if err != nil {
			errs = append(errs, &RowError{Line: line, Err: err})
			continue
		}
		row.Line = line
		rows = append(rows, row)
	}
	return rows, errors.Join(errs...)
}

func isHeader(rec []string) bool {
	return len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), header[0])
}

func parseRecord(rec []string) (Row, error) {
	if len(rec) < 4 || len(rec) > len(header) {
		return Row{}, fmt.Errorf("expected 4 or 5 fields, got %d: %w", len(rec), core.ErrValidation)
	}
	ts, err := parseDate(rec[0])
	if err != nil {
		return Row{}, err
	}
	amount, err := core.ParseAmount(rec[2])
	if err != nil {
		return Row{}, err
	}
	currency, err := core.ParseCurrency(rec[3])
	if err != nil {
		return Row{}, err
	}
	row := Row{
		Timestamp:   ts,
		Description: strings.TrimSpace(rec[1]),
		Sum:         core.NewMoney(amount, currency),
	}
	if len(rec) == 5 {
		row.Tags = core.NormalizeTags(strings.Split(rec[4], ";"))
	}
	return row, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: %w", s, core.ErrValidation)
}

// Adder adds one transaction. Implemented by *services.LedgerService.
type Adder interface {
	AddTransaction(ctx context.Context, owner string, t core.Transaction) (core.Transaction, error)
}

// Result summarizes an import run.
type Result struct {
	Added  int
	Failed []RowError
}

// Import adds rows to poolID in order. A failed row is recorded and the
// import continues. With dryRun nothing is written.
func Import(ctx context.Context, ledger Adder, owner, poolID string, rows []Row, dryRun bool, logger *log.Logger) (Result, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentImport)

	var res Result
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if dryRun {
			logger.Info("Would import transaction",
				"line", row.Line,
				log.FieldAmount, row.Sum.String(),
				"description", row.Description)
			continue
		}
		_, err := ledger.AddTransaction(ctx, owner, core.Transaction{
			Sum:         row.Sum,
			PoolID:      poolID,
			Description: row.Description,
			Timestamp:   row.Timestamp,
			Tags:        row.Tags,
		})
		if err != nil {
			logger.Warn("Failed to import transaction", "line", row.Line, log.FieldError, err)
			res.Failed = append(res.Failed, RowError{Line: row.Line, Err: err})
			continue
		}
		res.Added++
	}
	return res, nil
}
