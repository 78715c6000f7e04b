package wallet

import (
	"context"
	"errors"
	"strings"
)

// GetInvoices lists invoices where the user is sender or receiver, newest first.
func (s *Service) GetInvoices(ctx context.Context, userID string) ([]Invoice, error) {
	if !validUserID(userID) {
		return nil, ErrInvalidArgument
	}
	out, err := s.store.ListInvoices(ctx, userID)
	if err != nil {
		return nil, s.classify(ctx, "get_invoices", opFields{userID: userID}, err)
	}
	return out, nil
}

// GetInvoiceData builds the invoice view for one transaction leg.
// Legs without an invoice get a number derived from the transaction id.
func (s *Service) GetInvoiceData(ctx context.Context, transactionID string) (InvoiceData, error) {
	f := opFields{referenceID: transactionID}
	t, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return InvoiceData{}, s.classify(ctx, "get_invoice_data", f, err)
	}
	w, err := s.store.FindWalletByID(ctx, t.WalletID)
	if err != nil {
		return InvoiceData{}, s.classify(ctx, "get_invoice_data", f, err)
	}

	number := "INV-" + strings.ToUpper(firstN(t.ID, 8))
	if t.InvoiceID != "" {
		inv, err := s.store.GetInvoice(ctx, t.InvoiceID)
		switch {
		case err == nil:
			number = inv.InvoiceNumber
		case !errors.Is(err, ErrNotFound):
			return InvoiceData{}, s.classify(ctx, "get_invoice_data", f, err)
		}
	}

	return InvoiceData{
		InvoiceNumber: number,
		Date:          t.CreatedAt,
		Amount:        t.Amount,
		FeeAmount:     t.FeeAmount,
		TaxAmount:     t.TaxAmount,
		TotalAmount:   t.Amount.Add(t.FeeAmount).Add(t.TaxAmount),
		Description:   t.Description,
		Type:          t.Type,
		Status:        t.Status,
		UserID:        w.UserID,
		ReferenceID:   t.ReferenceID,
	}, nil
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
