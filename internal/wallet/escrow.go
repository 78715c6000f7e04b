package wallet

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// FundEscrow moves amount from the funder's balance into a hold for one milestone.
func (s *Service) FundEscrow(ctx context.Context, userID, contractID, milestoneID string, amount decimal.Decimal) (EscrowHold, error) {
	if !validUserID(userID) || strings.TrimSpace(contractID) == "" || strings.TrimSpace(milestoneID) == "" {
		return EscrowHold{}, ErrInvalidArgument
	}
	if err := validateAmount(amount); err != nil {
		return EscrowHold{}, err
	}
	f := opFields{userID: userID, amount: amount, referenceID: milestoneID}
	if _, err := s.store.EnsureWallet(ctx, userID); err != nil {
		return EscrowHold{}, s.classify(ctx, "escrow_fund", f, err)
	}

	now := s.now()
	var (
		out     EscrowHold
		cleared int
		settled decimal.Decimal
	)
	err := s.run(ctx, "escrow_fund", f, func(ctx context.Context, tx StoreTx) error {
		w, err := tx.LockWallet(ctx, userID)
		if err != nil {
			return err
		}
		if w, cleared, settled, err = s.clearDue(ctx, tx, w, now); err != nil {
			return err
		}
		if w.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}

		leg := completedLeg(w.ID, amount, TypeEscrowFund, DirectionDebit, "Escrow funding for milestone "+milestoneID, milestoneID, now)
		if _, err := tx.ApplyWalletDelta(ctx, w.ID, amount.Neg(), decimal.Zero, now); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, leg); err != nil {
			return err
		}

		hold := EscrowHold{
			ID:            newID(),
			WalletID:      w.ID,
			UserID:        userID,
			TransactionID: leg.ID,
			ContractID:    contractID,
			MilestoneID:   milestoneID,
			Amount:        amount,
			Status:        EscrowHeld,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertEscrowHold(ctx, hold); err != nil {
			return err
		}
		out = hold
		return nil
	})
	if err != nil {
		return EscrowHold{}, err
	}

	s.afterClear(ctx, userID, cleared, settled, now)
	s.emit(ctx, Event{
		Type:        EventEscrowFunded,
		ActorID:     userID,
		Amount:      amount,
		ReferenceID: milestoneID,
		Metadata:    map[string]string{"contract_id": contractID, "escrow_id": out.ID},
		OccurredAt:  now,
	})
	return out, nil
}

// ReleaseRequest pays a held milestone to PayeeID.
// RequestedBy must be the funder; empty means an administrative release.
type ReleaseRequest struct {
	ContractID  string
	MilestoneID string
	PayeeID     string
	Description string
	RequestedBy string
}

// ReleaseEscrow pays out a HELD hold: the payee's pending balance grows by the
// net amount, an invoice is written and the hold becomes RELEASED.
func (s *Service) ReleaseEscrow(ctx context.Context, req ReleaseRequest) (TransferResult, error) {
	if strings.TrimSpace(req.ContractID) == "" || strings.TrimSpace(req.MilestoneID) == "" || !validUserID(req.PayeeID) {
		return TransferResult{}, ErrInvalidArgument
	}
	f := opFields{userID: req.RequestedBy, referenceID: req.MilestoneID}
	payee, err := s.store.EnsureWallet(ctx, req.PayeeID)
	if err != nil {
		return TransferResult{}, s.classify(ctx, "escrow_release", f, err)
	}

	percent := s.fees.ResolveFeePercent(ctx)

	now := s.now()
	var (
		result TransferResult
		hold   EscrowHold
		fee    decimal.Decimal
		net    decimal.Decimal
	)
	err = s.run(ctx, "escrow_release", f, func(ctx context.Context, tx StoreTx) error {
		h, err := tx.LockHeldEscrow(ctx, req.ContractID, req.MilestoneID)
		if err != nil {
			return err
		}
		if req.RequestedBy != "" && req.RequestedBy != h.UserID {
			return ErrInvalidArgument
		}
		if h.UserID == req.PayeeID {
			return ErrInvalidArgument
		}
		if _, err := tx.LockWallet(ctx, req.PayeeID); err != nil {
			return err
		}

		fee, net = splitFee(h.Amount, percent)
		if !net.IsPositive() {
			return ErrInvalidAmount
		}
		description := req.Description
		if description == "" {
			description = "Milestone payment " + req.MilestoneID
		}
		inv, err := s.payPending(ctx, tx, payee, pendingCredit{
			senderID:    h.UserID,
			gross:       h.Amount,
			fee:         fee,
			net:         net,
			typ:         TypeEscrowRelease,
			description: description,
			referenceID: req.MilestoneID,
		}, now)
		if err != nil {
			return err
		}
		if err := tx.SetEscrowStatus(ctx, h.ID, EscrowReleased, now); err != nil {
			return err
		}
		hold = h
		result = TransferResult{InvoiceID: inv.ID}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}

	s.emit(ctx, Event{
		Type:        EventEscrowReleased,
		ActorID:     hold.UserID,
		Amount:      hold.Amount,
		ReferenceID: req.MilestoneID,
		Metadata: map[string]string{
			"contract_id": req.ContractID,
			"payee_id":    req.PayeeID,
			"fee_amount":  fee.StringFixed(2),
			"net_amount":  net.StringFixed(2),
			"invoice_id":  result.InvoiceID,
		},
		OccurredAt: now,
	})
	return result, nil
}

// RefundEscrow returns a HELD hold to the funder's spendable balance.
func (s *Service) RefundEscrow(ctx context.Context, contractID, milestoneID string) (EscrowHold, error) {
	if strings.TrimSpace(contractID) == "" || strings.TrimSpace(milestoneID) == "" {
		return EscrowHold{}, ErrInvalidArgument
	}
	f := opFields{referenceID: milestoneID}

	now := s.now()
	var out EscrowHold
	err := s.run(ctx, "escrow_refund", f, func(ctx context.Context, tx StoreTx) error {
		h, err := tx.LockHeldEscrow(ctx, contractID, milestoneID)
		if err != nil {
			return err
		}
		w, err := tx.LockWallet(ctx, h.UserID)
		if err != nil {
			return err
		}

		leg := completedLeg(w.ID, h.Amount, TypeEscrowRefund, DirectionCredit, "Escrow refund for milestone "+milestoneID, milestoneID, now)
		if _, err := tx.ApplyWalletDelta(ctx, w.ID, h.Amount, decimal.Zero, now); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, leg); err != nil {
			return err
		}
		if err := tx.SetEscrowStatus(ctx, h.ID, EscrowRefunded, now); err != nil {
			return err
		}
		h.Status = EscrowRefunded
		h.UpdatedAt = now
		out = h
		return nil
	})
	if err != nil {
		return EscrowHold{}, err
	}

	s.emit(ctx, Event{
		Type:        EventEscrowRefunded,
		ActorID:     out.UserID,
		Amount:      out.Amount,
		ReferenceID: milestoneID,
		Metadata:    map[string]string{"contract_id": contractID, "escrow_id": out.ID},
		OccurredAt:  now,
	})
	return out, nil
}

// SplitRequest divides a held milestone between PayeeID and the funder.
// PayeePercent is the payee's share of the hold, from 0 to 100.
type SplitRequest struct {
	ContractID   string
	MilestoneID  string
	PayeeID      string
	PayeePercent decimal.Decimal
	Description  string
}

// SplitResult reports how a hold was divided. InvoiceID is empty when the
// payee's share is zero.
type SplitResult struct {
	InvoiceID    string          `json:"invoiceId,omitempty"`
	PayeeAmount  decimal.Decimal `json:"payeeAmount"`
	FeeAmount    decimal.Decimal `json:"feeAmount"`
	RefundAmount decimal.Decimal `json:"refundAmount"`
}

// SplitEscrow settles a HELD hold partly to the payee and partly back to the
// funder. The payee's share is paid like a release (fee, invoice, pending
// credit); the remainder is refunded to the funder's spendable balance.
func (s *Service) SplitEscrow(ctx context.Context, req SplitRequest) (SplitResult, error) {
	if strings.TrimSpace(req.ContractID) == "" || strings.TrimSpace(req.MilestoneID) == "" || !validUserID(req.PayeeID) {
		return SplitResult{}, ErrInvalidArgument
	}
	if req.PayeePercent.IsNegative() || req.PayeePercent.GreaterThan(hundred) {
		return SplitResult{}, ErrInvalidArgument
	}
	f := opFields{userID: req.PayeeID, referenceID: req.MilestoneID}
	payee, err := s.store.EnsureWallet(ctx, req.PayeeID)
	if err != nil {
		return SplitResult{}, s.classify(ctx, "escrow_split", f, err)
	}

	percent := s.fees.ResolveFeePercent(ctx)

	now := s.now()
	var (
		result SplitResult
		hold   EscrowHold
	)
	err = s.run(ctx, "escrow_split", f, func(ctx context.Context, tx StoreTx) error {
		h, err := tx.LockHeldEscrow(ctx, req.ContractID, req.MilestoneID)
		if err != nil {
			return err
		}
		if h.UserID == req.PayeeID {
			return ErrInvalidArgument
		}
		funder, to, err := lockPair(ctx, tx, Wallet{ID: h.WalletID, UserID: h.UserID}, payee)
		if err != nil {
			return err
		}

		share := h.Amount.Mul(req.PayeePercent).Div(hundred).Round(2)
		refund := h.Amount.Sub(share)
		res := SplitResult{PayeeAmount: decimal.Zero, FeeAmount: decimal.Zero, RefundAmount: refund}

		if share.IsPositive() {
			fee, net := splitFee(share, percent)
			if !net.IsPositive() {
				return ErrInvalidAmount
			}
			description := req.Description
			if description == "" {
				description = "Milestone payment " + req.MilestoneID
			}
			inv, err := s.payPending(ctx, tx, to, pendingCredit{
				senderID:    h.UserID,
				gross:       share,
				fee:         fee,
				net:         net,
				typ:         TypeEscrowRelease,
				description: description,
				referenceID: req.MilestoneID,
			}, now)
			if err != nil {
				return err
			}
			res.InvoiceID = inv.ID
			res.PayeeAmount = net
			res.FeeAmount = fee
		}

		if refund.IsPositive() {
			leg := completedLeg(funder.ID, refund, TypeEscrowRefund, DirectionCredit, "Escrow refund for milestone "+req.MilestoneID, req.MilestoneID, now)
			if _, err := tx.ApplyWalletDelta(ctx, funder.ID, refund, decimal.Zero, now); err != nil {
				return err
			}
			if err := tx.InsertTransaction(ctx, leg); err != nil {
				return err
			}
		}

		status := EscrowReleased
		if !share.IsPositive() {
			status = EscrowRefunded
		}
		if err := tx.SetEscrowStatus(ctx, h.ID, status, now); err != nil {
			return err
		}
		hold = h
		result = res
		return nil
	})
	if err != nil {
		return SplitResult{}, err
	}

	s.emit(ctx, Event{
		Type:        EventEscrowSplit,
		ActorID:     hold.UserID,
		Amount:      hold.Amount,
		ReferenceID: req.MilestoneID,
		Metadata: map[string]string{
			"contract_id":   req.ContractID,
			"payee_id":      req.PayeeID,
			"payee_percent": req.PayeePercent.String(),
			"fee_amount":    result.FeeAmount.StringFixed(2),
			"net_amount":    result.PayeeAmount.StringFixed(2),
			"refund_amount": result.RefundAmount.StringFixed(2),
			"invoice_id":    result.InvoiceID,
		},
		OccurredAt: now,
	})
	return result, nil
}
