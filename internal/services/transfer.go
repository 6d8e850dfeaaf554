package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"moneypools/internal/amqp"
	"moneypools/internal/core"
	"moneypools/internal/log"
)

type TransferOutcome string

const (
	TransferCommitted            TransferOutcome = "committed"
	TransferRevertedAfterFailure TransferOutcome = "reverted_after_failure"
	TransferInconsistent         TransferOutcome = "inconsistent"
)

type TransferRequest struct {
	FromPoolID  string
	ToPoolID    string
	Sum         core.Money
	Description string
}

// TransferResult holds the transactions written by Transfer. Addition is
// nil unless the transfer committed.
type TransferResult struct {
	Outcome   TransferOutcome   `json:"outcome"`
	Deduction *core.Transaction `json:"deduction,omitempty"`
	Addition  *core.Transaction `json:"addition,omitempty"`
}

// Transfer moves |sum| from one pool to another as two transactions. The
// deduction is written first; if the addition fails the deduction is
// deleted once, on a context that ignores cancellation. When that delete
// also fails the ledger is left inconsistent and a reconciliation event is
// published.
func (s *LedgerService) Transfer(ctx context.Context, owner string, req TransferRequest) (TransferResult, error) {
	if req.Sum.Currency.IsZero() {
		return TransferResult{}, fmt.Errorf("missing currency: %w", core.ErrValidation)
	}
	if req.Sum.IsZero() {
		return TransferResult{}, fmt.Errorf("transfer of zero: %w", core.ErrInvalidAmount)
	}
	if req.FromPoolID == req.ToPoolID {
		return TransferResult{}, fmt.Errorf("source and destination are the same pool: %w", core.ErrValidation)
	}

	from, err := s.GetPool(ctx, owner, req.FromPoolID)
	if err != nil {
		return TransferResult{}, err
	}
	to, err := s.GetPool(ctx, owner, req.ToPoolID)
	if err != nil {
		return TransferResult{}, err
	}

	amount := req.Sum.Abs()
	ts := s.now().UTC()

	deduction, err := s.AddTransaction(ctx, owner, core.Transaction{
		Sum:         amount.Neg(),
		PoolID:      from.ID,
		Description: transferDescription("Transfer to", to.DisplayName, req.Description),
		Timestamp:   ts,
	})
	if err != nil {
		return TransferResult{}, fmt.Errorf("transfer deduction: %w", err)
	}

	addition, addErr := s.AddTransaction(ctx, owner, core.Transaction{
		Sum:         amount,
		PoolID:      to.ID,
		Description: transferDescription("Transfer from", from.DisplayName, req.Description),
		Timestamp:   ts,
	})
	if addErr == nil {
		s.logger.InfoContext(ctx, "Transfer committed",
			log.FieldOperation, log.OpTransfer,
			log.FieldOwner, owner,
			log.FieldFromPoolID, from.ID,
			log.FieldToPoolID, to.ID,
			log.FieldAmount, amount.Text(),
			log.FieldCurrency, amount.Currency.Code)
		return TransferResult{Outcome: TransferCommitted, Deduction: &deduction, Addition: &addition}, nil
	}

	reverted, revertErr := s.DeleteTransaction(context.WithoutCancel(ctx), owner, deduction.ID)
	if revertErr == nil && reverted {
		s.logger.WarnContext(ctx, "Transfer reverted after failure",
			log.FieldOperation, log.OpTransfer,
			log.FieldOwner, owner,
			log.FieldTransactionID, deduction.ID,
			log.FieldError, addErr)
		return TransferResult{Outcome: TransferRevertedAfterFailure, Deduction: &deduction},
			fmt.Errorf("transfer to %s: %w: %w", to.ID, core.ErrPartiallyReverted, addErr)
	}
	if revertErr == nil {
		revertErr = fmt.Errorf("deduction %s: %w", deduction.ID, core.ErrTransactionNotFound)
	}

	s.logger.ErrorContext(ctx, "Transfer left ledger inconsistent", log.NewFields().
		WithOperation(log.OpTransfer).
		WithOwner(owner).
		WithTransaction(deduction.ID, from.ID, deduction.Sum.Text(), deduction.Sum.Currency.Code).
		WithError(errors.Join(addErr, revertErr)).
		WithErrorType(log.ErrorTypeInconsistentState).
		ToSlice()...)

	event := amqp.NewLedgerEvent(amqp.EventTransferInconsistent, owner)
	event.TransactionID = deduction.ID
	event.PoolID = from.ID
	event.Transfer = &amqp.TransferDetail{
		FromPoolID:        from.ID,
		ToPoolID:          to.ID,
		DeductionID:       deduction.ID,
		Amount:            deduction.Sum.Text(),
		Currency:          deduction.Sum.Currency.Code,
		Cause:             addErr.Error(),
		CompensationError: revertErr.Error(),
	}
	s.publish(context.WithoutCancel(ctx), event)

	return TransferResult{Outcome: TransferInconsistent, Deduction: &deduction},
		fmt.Errorf("transfer to %s: %w: %w", to.ID, core.ErrInconsistentState, errors.Join(addErr, revertErr))
}

func transferDescription(prefix, poolName, note string) string {
	d := prefix + " " + poolName
	if note = strings.TrimSpace(note); note != "" {
		d += ": " + note
	}
	return d
}
