package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TransferRequest moves Amount from FromUserID to ToUserID. The payee receives
// the amount net of the platform fee as pending funds.
type TransferRequest struct {
	FromUserID  string
	ToUserID    string
	Amount      decimal.Decimal
	Description string
	ReferenceID string
}

// Transfer debits the payer, credits the payee's pending balance with the net
// amount, and writes the invoice plus both legs in one unit of work.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	f := opFields{userID: req.FromUserID, amount: req.Amount, referenceID: req.ReferenceID}
	if !validUserID(req.FromUserID) || !validUserID(req.ToUserID) || req.FromUserID == req.ToUserID {
		return TransferResult{}, ErrInvalidArgument
	}
	if err := validateAmount(req.Amount); err != nil {
		return TransferResult{}, err
	}

	payer, err := s.store.FindWalletByUser(ctx, req.FromUserID)
	if err != nil {
		return TransferResult{}, s.classify(ctx, "transfer", f, err)
	}
	payee, err := s.store.EnsureWallet(ctx, req.ToUserID)
	if err != nil {
		return TransferResult{}, s.classify(ctx, "transfer", f, err)
	}

	// Resolved before the unit of work so no row lock waits on the network.
	fee, net := splitFee(req.Amount, s.fees.ResolveFeePercent(ctx))
	if !net.IsPositive() {
		return TransferResult{}, ErrInvalidAmount
	}

	now := s.now()
	var (
		result  TransferResult
		cleared int
		settled decimal.Decimal
	)
	err = s.run(ctx, "transfer", f, func(ctx context.Context, tx StoreTx) error {
		from, to, err := lockPair(ctx, tx, payer, payee)
		if err != nil {
			return err
		}
		if from, cleared, settled, err = s.clearDue(ctx, tx, from, now); err != nil {
			return err
		}
		if from.Balance.LessThan(req.Amount) {
			return ErrInsufficientFunds
		}

		description := req.Description
		if description == "" {
			description = "Payment"
		}

		debit := completedLeg(from.ID, req.Amount, TypePayment, DirectionDebit, description, req.ReferenceID, now)
		debit.FeeAmount = fee
		if _, err := tx.ApplyWalletDelta(ctx, from.ID, req.Amount.Neg(), decimal.Zero, now); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, debit); err != nil {
			return err
		}

		inv, err := s.payPending(ctx, tx, to, pendingCredit{
			senderID:    req.FromUserID,
			gross:       req.Amount,
			fee:         fee,
			net:         net,
			typ:         TypePayment,
			description: description,
			referenceID: req.ReferenceID,
		}, now)
		if err != nil {
			return err
		}
		result = TransferResult{InvoiceID: inv.ID}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}

	s.afterClear(ctx, req.FromUserID, cleared, settled, now)
	s.emit(ctx, Event{
		Type:        EventTransferCompleted,
		ActorID:     req.FromUserID,
		Amount:      req.Amount,
		ReferenceID: req.ReferenceID,
		Metadata: map[string]string{
			"to_user_id": req.ToUserID,
			"fee_amount": fee.StringFixed(2),
			"net_amount": net.StringFixed(2),
			"invoice_id": result.InvoiceID,
		},
		OccurredAt: now,
	})
	return result, nil
}

// lockPair locks both wallets in ascending wallet-id order so concurrent
// opposite-direction transfers cannot deadlock.
func lockPair(ctx context.Context, tx StoreTx, from, to Wallet) (Wallet, Wallet, error) {
	first, second := from, to
	if second.ID < first.ID {
		first, second = second, first
	}
	a, err := tx.LockWallet(ctx, first.UserID)
	if err != nil {
		return Wallet{}, Wallet{}, err
	}
	b, err := tx.LockWallet(ctx, second.UserID)
	if err != nil {
		return Wallet{}, Wallet{}, err
	}
	if a.ID == from.ID {
		return a, b, nil
	}
	return b, a, nil
}

type pendingCredit struct {
	senderID    string
	gross       decimal.Decimal
	fee         decimal.Decimal
	net         decimal.Decimal
	typ         TransactionType
	description string
	referenceID string
}

// payPending credits the payee's pending balance, writes the PAID invoice and
// the pending credit leg that clearing settles after the clearing period.
func (s *Service) payPending(ctx context.Context, tx StoreTx, payee Wallet, c pendingCredit, now time.Time) (Invoice, error) {
	if _, err := tx.ApplyWalletDelta(ctx, payee.ID, decimal.Zero, c.net, now); err != nil {
		return Invoice{}, err
	}

	inv := Invoice{
		ID:            newID(),
		InvoiceNumber: newInvoiceNumber(now),
		SenderID:      c.senderID,
		ReceiverID:    payee.UserID,
		Amount:        c.net,
		FeeAmount:     c.fee,
		TaxAmount:     decimal.Zero,
		Status:        InvoicePaid,
		Items: InvoiceItems{{
			Description: c.description,
			Quantity:    1,
			UnitPrice:   c.gross,
			GrossAmount: c.gross,
			FeeAmount:   c.fee,
			NetAmount:   c.net,
		}},
		PaidAt:    now,
		CreatedAt: now,
	}
	if err := tx.InsertInvoice(ctx, inv); err != nil {
		return Invoice{}, err
	}

	clearAt := now.Add(s.clearingPeriod)
	credit := Transaction{
		ID:          newID(),
		WalletID:    payee.ID,
		Amount:      c.net,
		FeeAmount:   c.fee,
		TaxAmount:   decimal.Zero,
		Type:        c.typ,
		Direction:   DirectionCredit,
		Status:      StatusPending,
		ClearedAt:   &clearAt,
		ReferenceID: c.referenceID,
		InvoiceID:   inv.ID,
		Description: c.description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.InsertTransaction(ctx, credit); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}
