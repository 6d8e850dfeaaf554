package worker

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"moneypools/internal/amqp"
	"moneypools/internal/core"
	"moneypools/internal/ledger/memory"
	"moneypools/internal/log"
)

func TestReconciler_HandleEvent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	usd := core.MustParseCurrency("USD")
	pool, err := store.AddPool(ctx, "alice", core.Pool{DisplayName: "checking", Balance: []core.Money{core.NewMoney(decimal.NewFromInt(100), usd)}})
	if err != nil {
		t.Fatal(err)
	}
	deduction, err := store.AddTransaction(ctx, "alice", core.Transaction{PoolID: pool.ID, Sum: core.NewMoney(decimal.NewFromInt(-25), usd)})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	r := NewReconciler(store, log.New(log.Config{Output: &buf, Format: "json"}))

	event := amqp.NewLedgerEvent(amqp.EventTransferInconsistent, "alice")
	event.Transfer = &amqp.TransferDetail{FromPoolID: pool.ID, ToPoolID: "p2", DeductionID: deduction.ID, Amount: "-25.00", Currency: "USD"}

	if err := r.HandleEvent(ctx, event); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Transfer needs manual reconciliation") {
		t.Errorf("expected reconciliation log, got %s", buf.String())
	}

	buf.Reset()
	if _, err := store.DeleteTransaction(ctx, "alice", deduction.ID); err != nil {
		t.Fatal(err)
	}
	if err := r.HandleEvent(ctx, event); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if !strings.Contains(buf.String(), "already reconciled") {
		t.Errorf("expected already reconciled log, got %s", buf.String())
	}
}

func TestReconciler_IgnoresOtherEvents(t *testing.T) {
	r := NewReconciler(memory.New(), nil)
	if err := r.HandleEvent(context.Background(), amqp.NewLedgerEvent(amqp.EventTransactionAdded, "alice")); err != nil {
		t.Errorf("HandleEvent() error = %v", err)
	}
}
