package wallet

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// Replay rebuilds (balance, pendingBalance) from a wallet's legs.
// Settled legs count toward balance; unsettled credit legs toward pending.
// FAILED legs never moved money and are skipped.
func Replay(txs []Transaction) (decimal.Decimal, decimal.Decimal) {
	ordered := append([]Transaction(nil), txs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	balance, pending := decimal.Zero, decimal.Zero
	for _, t := range ordered {
		if t.Status == StatusFailed {
			continue
		}
		switch {
		case t.SettledAt != nil && t.Direction == DirectionCredit:
			balance = balance.Add(t.Amount)
		case t.SettledAt != nil && t.Direction == DirectionDebit:
			balance = balance.Sub(t.Amount)
		case t.Direction == DirectionCredit:
			pending = pending.Add(t.Amount)
		}
	}
	return balance, pending
}

// Reconcile replays the user's history and reports whether it matches the
// stored wallet.
func (s *Service) Reconcile(ctx context.Context, userID string) (ReconcileReport, error) {
	w, err := s.store.FindWalletByUser(ctx, userID)
	if err != nil {
		return ReconcileReport{}, s.classify(ctx, "reconcile", opFields{userID: userID}, err)
	}
	txs, err := s.store.ListWalletTransactions(ctx, w.ID)
	if err != nil {
		return ReconcileReport{}, s.classify(ctx, "reconcile", opFields{userID: userID}, err)
	}
	balance, pending := Replay(txs)
	return ReconcileReport{
		UserID:          userID,
		StoredBalance:   w.Balance,
		StoredPending:   w.PendingBalance,
		ReplayedBalance: balance,
		ReplayedPending: pending,
		Consistent:      balance.Equal(w.Balance) && pending.Equal(w.PendingBalance),
	}, nil
}

type ReconcileReport struct {
	UserID          string          `json:"userId"`
	StoredBalance   decimal.Decimal `json:"storedBalance"`
	StoredPending   decimal.Decimal `json:"storedPending"`
	ReplayedBalance decimal.Decimal `json:"replayedBalance"`
	ReplayedPending decimal.Decimal `json:"replayedPending"`
	Consistent      bool            `json:"consistent"`
}
