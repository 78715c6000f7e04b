package wallet

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Deposit credits funds that are immediately spendable and returns the
// updated wallet.
func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal, referenceID string) (Wallet, error) {
	if !validUserID(userID) {
		return Wallet{}, ErrInvalidArgument
	}
	if err := validateAmount(amount); err != nil {
		return Wallet{}, err
	}

	w, now, err := s.moveSpendable(ctx, "deposit", userID, amount, TypeDeposit, DirectionCredit, "Wallet deposit", referenceID)
	if err != nil {
		return Wallet{}, err
	}
	s.emit(ctx, Event{Type: EventDepositCompleted, ActorID: userID, Amount: amount, ReferenceID: referenceID, OccurredAt: now})
	return w, nil
}

// Withdraw debits spendable funds and returns the updated wallet. Payout
// execution happens elsewhere.
func (s *Service) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (Wallet, error) {
	if !validUserID(userID) {
		return Wallet{}, ErrInvalidArgument
	}
	if err := validateAmount(amount); err != nil {
		return Wallet{}, err
	}

	w, now, err := s.moveSpendable(ctx, "withdraw", userID, amount, TypeWithdrawal, DirectionDebit, "Wallet withdrawal", "")
	if err != nil {
		return Wallet{}, err
	}
	s.emit(ctx, Event{Type: EventWithdrawCompleted, ActorID: userID, Amount: amount, OccurredAt: now})
	return w, nil
}

// ChargeSubscription debits a plan price from spendable funds as a settled
// SUBSCRIPTION leg referencing planID. Plan bookkeeping lives with the caller.
func (s *Service) ChargeSubscription(ctx context.Context, userID, planID string, amount decimal.Decimal) (Wallet, error) {
	if !validUserID(userID) || strings.TrimSpace(planID) == "" {
		return Wallet{}, ErrInvalidArgument
	}
	if err := validateAmount(amount); err != nil {
		return Wallet{}, err
	}

	w, now, err := s.moveSpendable(ctx, "subscription", userID, amount, TypeSubscription, DirectionDebit, "Subscription: "+planID, planID)
	if err != nil {
		return Wallet{}, err
	}
	s.emit(ctx, Event{Type: EventSubscriptionCharged, ActorID: userID, Amount: amount, ReferenceID: planID, OccurredAt: now})
	return w, nil
}

// moveSpendable applies one settled leg to the user's spendable balance in a
// unit of work. Debits fail with ErrInsufficientFunds rather than go negative.
func (s *Service) moveSpendable(ctx context.Context, op, userID string, amount decimal.Decimal, typ TransactionType, dir Direction, description, referenceID string) (Wallet, time.Time, error) {
	f := opFields{userID: userID, amount: amount, referenceID: referenceID}
	if _, err := s.store.EnsureWallet(ctx, userID); err != nil {
		return Wallet{}, time.Time{}, s.classify(ctx, op, f, err)
	}

	delta := amount
	if dir == DirectionDebit {
		delta = amount.Neg()
	}

	now := s.now()
	var (
		out     Wallet
		cleared int
		settled decimal.Decimal
	)
	err := s.run(ctx, op, f, func(ctx context.Context, tx StoreTx) error {
		w, err := tx.LockWallet(ctx, userID)
		if err != nil {
			return err
		}
		if w, cleared, settled, err = s.clearDue(ctx, tx, w, now); err != nil {
			return err
		}
		if dir == DirectionDebit && w.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}

		leg := completedLeg(w.ID, amount, typ, dir, description, referenceID, now)
		updated, err := tx.ApplyWalletDelta(ctx, w.ID, delta, decimal.Zero, now)
		if err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, leg); err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return Wallet{}, time.Time{}, err
	}

	s.afterClear(ctx, userID, cleared, settled, now)
	return out, now, nil
}

// completedLeg builds a leg whose funds are settled at creation.
func completedLeg(walletID string, amount decimal.Decimal, typ TransactionType, dir Direction, description, referenceID string, now time.Time) Transaction {
	settled := now
	return Transaction{
		ID:          newID(),
		WalletID:    walletID,
		Amount:      amount,
		FeeAmount:   decimal.Zero,
		TaxAmount:   decimal.Zero,
		Type:        typ,
		Direction:   dir,
		Status:      StatusCompleted,
		SettledAt:   &settled,
		ReferenceID: referenceID,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
