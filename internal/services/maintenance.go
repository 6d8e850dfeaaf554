package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"moneypools/internal/core"
	"moneypools/internal/log"
)

const maintenancePageSize = 500

// BackfillReporting computes AmountInReportingCurrency for transactions
// stored without it. Transactions whose rate is still unavailable are
// skipped.
func (s *LedgerService) BackfillReporting(ctx context.Context, owner string, dryRun bool) (int, error) {
	var filled int
	err := s.eachTransaction(ctx, owner, core.TransactionFilter{}, core.OldestFirst, func(t core.Transaction) error {
		if t.AmountInReportingCurrency != nil {
			return nil
		}
		v, err := s.reportingAmount(ctx, t.Sum)
		if err != nil {
			s.logger.WarnContext(ctx, "Reporting amount still unavailable",
				log.FieldTransactionID, t.ID,
				log.FieldCurrency, t.Sum.Currency.Code,
				log.FieldError, err,
				log.FieldErrorType, log.ErrorTypeRateUnavailable)
			return nil
		}
		filled++
		if dryRun {
			return nil
		}
		_, err = s.store.UpdateTransaction(ctx, owner, t.ID, core.TransactionUpdate{AmountInReportingCurrency: v})
		return err
	})
	if err != nil {
		return filled, fmt.Errorf("backfill reporting amounts: %w", err)
	}
	s.logger.InfoContext(ctx, "Reporting amounts backfilled",
		log.FieldOwner, owner,
		log.FieldCount, filled,
		"dry_run", dryRun)
	return filled, nil
}

// Retag adds tag to every untagged transaction whose description contains
// match, case-insensitively. Candidates are visited largest expense first.
func (s *LedgerService) Retag(ctx context.Context, owner, match, tag string, dryRun bool) ([]core.Transaction, error) {
	match = strings.ToLower(strings.TrimSpace(match))
	tags := core.NormalizeTags([]string{tag})
	if match == "" || len(tags) == 0 {
		return nil, fmt.Errorf("match and tag are required: %w", core.ErrValidation)
	}

	candidates, err := s.store.LoadTransactions(ctx, owner, core.TransactionFilter{UntaggedOnly: true}, core.LargestNegativeFirst, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("load untagged transactions: %w", err)
	}

	retagged := make([]core.Transaction, 0)
	for _, t := range candidates {
		if !strings.Contains(strings.ToLower(t.Description), match) {
			continue
		}
		t.Tags = slices.Clone(tags)
		if !dryRun {
			if _, err := s.store.UpdateTransaction(ctx, owner, t.ID, core.TransactionUpdate{Tags: &tags}); err != nil {
				return retagged, fmt.Errorf("retag %s: %w", t.ID, err)
			}
		}
		retagged = append(retagged, t)
	}
	s.logger.InfoContext(ctx, "Transactions retagged",
		log.FieldOwner, owner,
		log.FieldCount, len(retagged),
		"tag", tags[0],
		"dry_run", dryRun)
	return retagged, nil
}

// eachTransaction pages through matching transactions in order.
func (s *LedgerService) eachTransaction(ctx context.Context, owner string, f core.TransactionFilter, order core.TransactionOrder, fn func(core.Transaction) error) error {
	// Collected up front; fn may write to the store.
	var all []core.Transaction
	for offset := 0; ; offset += maintenancePageSize {
		page, err := s.store.LoadTransactions(ctx, owner, f, order, offset, maintenancePageSize)
		if err != nil {
			return err
		}
		all = append(all, page...)
		if len(page) < maintenancePageSize {
			break
		}
	}
	for _, t := range all {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}
