package wallet

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// clearDue moves due pending credits of a locked wallet into its balance.
// Legs are re-selected under the wallet lock with status PENDING, so running
// it twice for the same instant settles nothing the second time.
func (s *Service) clearDue(ctx context.Context, tx StoreTx, w Wallet, now time.Time) (Wallet, int, decimal.Decimal, error) {
	due, err := tx.LockDueTransactions(ctx, w.ID, now)
	if err != nil {
		return Wallet{}, 0, decimal.Zero, err
	}
	if len(due) == 0 {
		return w, 0, decimal.Zero, nil
	}

	total := decimal.Zero
	for _, t := range due {
		if err := tx.MarkSettled(ctx, t.ID, now); err != nil {
			return Wallet{}, 0, decimal.Zero, err
		}
		if t.Direction == DirectionCredit {
			total = total.Add(t.Amount)
		}
	}

	out, err := tx.ApplyWalletDelta(ctx, w.ID, total, total.Neg(), now)
	if err != nil {
		return Wallet{}, 0, decimal.Zero, err
	}
	return out, len(due), total, nil
}

func (s *Service) afterClear(ctx context.Context, userID string, n int, amount decimal.Decimal, now time.Time) {
	if n == 0 {
		return
	}
	s.observer.ObserveCleared(n)
	s.emit(ctx, Event{
		Type:       EventTransactionsCleared,
		ActorID:    userID,
		Amount:     amount,
		Metadata:   map[string]string{"count": strconv.Itoa(n)},
		OccurredAt: now,
	})
}
