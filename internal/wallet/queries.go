package wallet

import (
	"context"
	"errors"
	"strings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GetTransactionsByReference lists every leg tagged with referenceID, newest first.
func (s *Service) GetTransactionsByReference(ctx context.Context, referenceID string) ([]Transaction, error) {
	if strings.TrimSpace(referenceID) == "" {
		return nil, ErrInvalidArgument
	}
	out, err := s.store.ListTransactionsByReference(ctx, referenceID)
	if err != nil {
		return nil, s.classify(ctx, "get_transactions_by_reference", opFields{referenceID: referenceID}, err)
	}
	return out, nil
}

// ListTransactions pages through legs matching f, newest first.
func (s *Service) ListTransactions(ctx context.Context, f TransactionFilter) (TransactionPage, error) {
	if f.Type != "" && !f.Type.Valid() {
		return TransactionPage{}, ErrInvalidArgument
	}
	if f.Status != "" && !f.Status.Valid() {
		return TransactionPage{}, ErrInvalidArgument
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	data, total, err := s.store.ListTransactions(ctx, f)
	if err != nil {
		return TransactionPage{}, s.classify(ctx, "list_transactions", opFields{userID: f.UserID}, err)
	}
	return TransactionPage{Total: total, Data: data}, nil
}

// GetTransaction returns one leg. Callers that do not own it get ErrNotFound
// unless isAdmin is set.
func (s *Service) GetTransaction(ctx context.Context, id, callerID string, isAdmin bool) (Transaction, error) {
	f := opFields{userID: callerID, referenceID: id}
	t, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, s.classify(ctx, "get_transaction", f, err)
	}
	if isAdmin {
		return t, nil
	}
	w, err := s.store.FindWalletByID(ctx, t.WalletID)
	if err != nil {
		return Transaction{}, s.classify(ctx, "get_transaction", f, err)
	}
	if w.UserID != callerID {
		return Transaction{}, ErrNotFound
	}
	return t, nil
}

// UpdateTransactionStatus moves a PENDING or COMPLETED leg to REFUNDED or
// DISPUTED. Balances are untouched; compensation is a separate movement.
// A PENDING credit moved this way is never cleared, so its amount stays
// parked in the payee's pendingBalance until a compensating movement
// releases it.
func (s *Service) UpdateTransactionStatus(ctx context.Context, id string, status TransactionStatus, actorID string) (Transaction, error) {
	if status != StatusRefunded && status != StatusDisputed {
		return Transaction{}, ErrInvalidTransition
	}

	now := s.now()
	var out Transaction
	err := s.run(ctx, "update_transaction_status", opFields{userID: actorID, referenceID: id}, func(ctx context.Context, tx StoreTx) error {
		t, err := tx.LockTransaction(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != StatusPending && t.Status != StatusCompleted {
			return ErrInvalidTransition
		}
		if err := tx.SetTransactionStatus(ctx, id, status, now); err != nil {
			return err
		}
		t.Status = status
		t.UpdatedAt = now
		out = t
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}

	s.emit(ctx, Event{
		Type:        EventTransactionStatusUpdated,
		ActorID:     actorID,
		Amount:      out.Amount,
		ReferenceID: out.ID,
		Metadata:    map[string]string{"status": string(status)},
		OccurredAt:  now,
	})
	return out, nil
}

// UpdateAutoWithdrawal stores the user's auto-withdrawal policy.
func (s *Service) UpdateAutoWithdrawal(ctx context.Context, userID string, settings AutoWithdrawalSettings) (Wallet, error) {
	if !validUserID(userID) {
		return Wallet{}, ErrInvalidArgument
	}
	if settings.Threshold != nil && !settings.Threshold.IsPositive() {
		return Wallet{}, ErrInvalidArgument
	}
	if settings.Enabled && settings.Threshold == nil && settings.Schedule == "" {
		return Wallet{}, ErrInvalidArgument
	}
	if _, err := s.store.EnsureWallet(ctx, userID); err != nil {
		return Wallet{}, s.classify(ctx, "update_auto_withdrawal", opFields{userID: userID}, err)
	}

	now := s.now()
	var out Wallet
	err := s.run(ctx, "update_auto_withdrawal", opFields{userID: userID}, func(ctx context.Context, tx StoreTx) error {
		w, err := tx.LockWallet(ctx, userID)
		if err != nil {
			return err
		}
		out, err = tx.UpdateAutoWithdrawal(ctx, w.ID, settings, now)
		return err
	})
	if err != nil {
		return Wallet{}, err
	}
	s.emit(ctx, Event{Type: EventAutoWithdrawalUpdated, ActorID: userID, OccurredAt: now})
	return out, nil
}

// WalletHistory returns every leg of the user's wallet in creation order.
func (s *Service) WalletHistory(ctx context.Context, userID string) ([]Transaction, error) {
	w, err := s.store.FindWalletByUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return []Transaction{}, nil
	}
	if err != nil {
		return nil, s.classify(ctx, "wallet_history", opFields{userID: userID}, err)
	}
	out, err := s.store.ListWalletTransactions(ctx, w.ID)
	if err != nil {
		return nil, s.classify(ctx, "wallet_history", opFields{userID: userID}, err)
	}
	return out, nil
}
