package worker

import (
	"context"
	"fmt"

	"moneypools/internal/amqp"
	"moneypools/internal/core"
	"moneypools/internal/ledger"
	"moneypools/internal/log"
)

// Reconciler inspects transfer.inconsistent events. A deduction that is
// still stored is reported for manual repair; one that is gone needs no
// action.
type Reconciler struct {
	store  ledger.TransactionStore
	logger *log.Logger
}

func NewReconciler(store ledger.TransactionStore, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.Discard()
	}
	return &Reconciler{store: store, logger: logger.WithComponent(log.ComponentWorker)}
}

// HandleEvent returns an error only when the store could not be queried,
// so the message is requeued.
func (r *Reconciler) HandleEvent(ctx context.Context, e *amqp.LedgerEvent) error {
	if e.Type != amqp.EventTransferInconsistent || e.Transfer == nil {
		r.logger.DebugContext(ctx, "Ignoring ledger event", "type", e.Type)
		return nil
	}
	d := e.Transfer

	ts, err := r.store.LoadTransactions(ctx, e.Owner,
		core.TransactionFilter{TransactionIDs: []string{d.DeductionID}}, core.LatestFirst, 0, 1)
	if err != nil {
		return fmt.Errorf("look up deduction %s: %w", d.DeductionID, err)
	}

	if len(ts) == 0 {
		r.logger.InfoContext(ctx, "Inconsistent transfer already reconciled",
			log.FieldOwner, e.Owner,
			log.FieldTransactionID, d.DeductionID)
		return nil
	}

	r.logger.ErrorContext(ctx, "Transfer needs manual reconciliation",
		log.FieldOwner, e.Owner,
		log.FieldTransactionID, d.DeductionID,
		log.FieldFromPoolID, d.FromPoolID,
		log.FieldToPoolID, d.ToPoolID,
		log.FieldAmount, d.Amount,
		log.FieldCurrency, d.Currency,
		"cause", d.Cause,
		"compensation_error", d.CompensationError,
		log.FieldErrorType, log.ErrorTypeInconsistentState)
	return nil
}
