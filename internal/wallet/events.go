package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventDepositCompleted         EventType = "DEPOSIT_COMPLETED"
	EventWithdrawCompleted        EventType = "WITHDRAW_COMPLETED"
	EventTransferCompleted        EventType = "TRANSFER_COMPLETED"
	EventEscrowFunded             EventType = "ESCROW_FUNDED"
	EventEscrowReleased           EventType = "ESCROW_RELEASED"
	EventEscrowRefunded           EventType = "ESCROW_REFUNDED"
	EventEscrowSplit              EventType = "ESCROW_SPLIT_RELEASED"
	EventSubscriptionCharged      EventType = "SUBSCRIPTION_CHARGED"
	EventTransactionsCleared      EventType = "TRANSACTIONS_CLEARED"
	EventTransactionStatusUpdated EventType = "TRANSACTION_STATUS_UPDATED"
	EventAutoWithdrawalUpdated    EventType = "AUTO_WITHDRAWAL_UPDATED"
)

// Event describes a committed ledger change. Emitted after commit only.
type Event struct {
	Type        EventType         `json:"type"`
	ActorID     string            `json:"actorId"`
	Amount      decimal.Decimal   `json:"amount"`
	ReferenceID string            `json:"referenceId,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	OccurredAt  time.Time         `json:"occurredAt"`
}

// EventSink receives committed ledger events. Failures are logged by the
// service and never affect the operation's result.
type EventSink interface {
	Record(ctx context.Context, e Event) error
}

// MultiSink fans an event out to every sink and returns the first error.
type MultiSink []EventSink

func (m MultiSink) Record(ctx context.Context, e Event) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Observer receives operation outcomes for metrics.
type Observer interface {
	ObserveOperation(op string, err error, elapsed time.Duration)
	ObserveRetry(op string)
	ObserveCleared(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, error, time.Duration) {}
func (nopObserver) ObserveRetry(string)                           {}
func (nopObserver) ObserveCleared(int)                            {}
