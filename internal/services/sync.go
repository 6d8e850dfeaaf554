package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"moneypools/internal/core"
	"moneypools/internal/log"
)

type SyncFailure struct {
	Currency core.Currency `json:"currency"`
	Err      error         `json:"-"`
}

func (f SyncFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Currency, f.Err)
}

type SyncResult struct {
	Applied []core.Transaction `json:"applied"`
	Failed  []SyncFailure      `json:"failed"`
}

// SyncPoolBalance brings each balance line of a pool to the matching target
// by adding one diffuse transaction per changed line. targets are positional.
func (s *LedgerService) SyncPoolBalance(ctx context.Context, owner, poolID string, targets []decimal.Decimal) (SyncResult, error) {
	pool, err := s.GetPool(ctx, owner, poolID)
	if err != nil {
		return SyncResult{}, err
	}
	if len(targets) != len(pool.Balance) {
		return SyncResult{}, fmt.Errorf("pool %s has %d balance lines, got %d targets: %w",
			pool.ID, len(pool.Balance), len(targets), core.ErrValidation)
	}

	res := SyncResult{Applied: []core.Transaction{}, Failed: []SyncFailure{}}
	now := s.now().UTC()
	for i, line := range pool.Balance {
		target := core.NewMoney(targets[i], line.Currency)
		delta := target.Amount.Sub(line.Amount)
		if delta.IsZero() {
			continue
		}
		t, err := s.AddTransaction(ctx, owner, core.Transaction{
			Sum:         core.NewMoney(delta, line.Currency),
			PoolID:      pool.ID,
			Description: fmt.Sprintf("Sync balance: %s → %s", line, target),
			Timestamp:   now,
			IsDiffuse:   true,
		})
		if err != nil {
			res.Failed = append(res.Failed, SyncFailure{Currency: line.Currency, Err: err})
			continue
		}
		res.Applied = append(res.Applied, t)
	}

	switch {
	case len(res.Failed) == 0:
		s.logger.InfoContext(ctx, "Pool balance synced",
			log.FieldOperation, log.OpSync,
			log.FieldOwner, owner,
			log.FieldPoolID, pool.ID,
			log.FieldCount, len(res.Applied))
		return res, nil
	case len(res.Applied) == 0:
		return res, fmt.Errorf("sync pool %s: %w", pool.ID, res.Failed[0].Err)
	default:
		s.logger.WarnContext(ctx, "Pool balance partially synced",
			log.FieldOperation, log.OpSync,
			log.FieldOwner, owner,
			log.FieldPoolID, pool.ID,
			log.FieldCount, len(res.Applied),
			log.FieldError, res.Failed[0].Err)
		return res, fmt.Errorf("sync pool %s: %d of %d currencies failed: %w",
			pool.ID, len(res.Failed), len(res.Failed)+len(res.Applied), core.ErrPartialFailure)
	}
}
