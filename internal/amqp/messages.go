package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType doubles as the routing key on the ledger exchange.
type EventType string

const (
	EventTransactionAdded     EventType = "transaction.added"
	EventTransactionDeleted   EventType = "transaction.deleted"
	EventTransferInconsistent EventType = "transfer.inconsistent"
)

func (t EventType) Valid() bool {
	switch t {
	case EventTransactionAdded, EventTransactionDeleted, EventTransferInconsistent:
		return true
	}
	return false
}

// LedgerEvent is a notification about a committed (or half-committed) ledger
// change. Amounts travel as decimal strings.
type LedgerEvent struct {
	Type          EventType       `json:"type"`
	Owner         string          `json:"owner"`
	TransactionID string          `json:"transaction_id,omitempty"`
	PoolID        string          `json:"pool_id,omitempty"`
	Amount        string          `json:"amount,omitempty"`
	Currency      string          `json:"currency,omitempty"`
	Transfer      *TransferDetail `json:"transfer,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// TransferDetail describes a transfer whose compensation failed and which
// needs manual reconciliation.
type TransferDetail struct {
	FromPoolID        string `json:"from_pool_id"`
	ToPoolID          string `json:"to_pool_id"`
	DeductionID       string `json:"deduction_id"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Cause             string `json:"cause"`
	CompensationError string `json:"compensation_error"`
}

func NewLedgerEvent(typ EventType, owner string) *LedgerEvent {
	return &LedgerEvent{
		Type:      typ,
		Owner:     owner,
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes a message body and rejects unknown event types.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Type.Valid() {
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if msg.Type == EventTransferInconsistent && msg.Transfer == nil {
		return nil, fmt.Errorf("%s event without transfer detail", msg.Type)
	}
	return &msg, nil
}
