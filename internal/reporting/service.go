package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"wallet-ledger/internal/wallet"

	"github.com/shopspring/decimal"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. Implementations query the
// immutable ledger sources (invoices, transaction legs); wallet.Store satisfies it.
type Repository interface {
	ListInvoices(ctx context.Context, userID string) ([]wallet.Invoice, error)
	ListTransactions(ctx context.Context, f wallet.TransactionFilter) ([]wallet.Transaction, int, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// EarningsStats sums PAID invoices received by userID per period, net of fees.
func (s *Service) EarningsStats(ctx context.Context, userID string, period Period) ([]PeriodTotal, error) {
	return s.series(ctx, userID, period, func(inv wallet.Invoice) (decimal.Decimal, bool) {
		return inv.Amount, inv.ReceiverID == userID
	})
}

// SpendingStats sums PAID invoices sent by userID per period. Totals are the
// invoiced (net) amounts, so earnings and spending reconcile across users.
func (s *Service) SpendingStats(ctx context.Context, userID string, period Period) ([]PeriodTotal, error) {
	return s.series(ctx, userID, period, func(inv wallet.Invoice) (decimal.Decimal, bool) {
		return inv.Amount, inv.SenderID == userID
	})
}

func (s *Service) series(ctx context.Context, userID string, period Period, pick func(wallet.Invoice) (decimal.Decimal, bool)) ([]PeriodTotal, error) {
	if userID == "" || !period.Valid() {
		return nil, ErrInvalidRequest
	}
	if s.repo == nil {
		return nil, errors.New("reporting: repository not configured")
	}

	invoices, err := s.repo.ListInvoices(ctx, userID)
	if err != nil {
		return nil, err
	}

	buckets := map[string]*PeriodTotal{}
	for _, inv := range invoices {
		if inv.Status != wallet.InvoicePaid {
			continue
		}
		amount, ok := pick(inv)
		if !ok {
			continue
		}
		label := Label(inv.CreatedAt, period)
		b, ok := buckets[label]
		if !ok {
			b = &PeriodTotal{Period: label, Total: decimal.Zero}
			buckets[label] = b
		}
		b.Total = b.Total.Add(amount)
		b.Count++
	}

	out := make([]PeriodTotal, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}

// Label buckets t (in UTC) for period.
func Label(t time.Time, period Period) string {
	t = t.UTC()
	switch period {
	case PeriodWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case PeriodMonthly:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

const metricsPageSize = 500

// Metrics aggregates every COMPLETED leg on the platform. TotalFees is the
// platform's fee revenue: the fee recorded on every payee credit leg, whatever
// its status, so escrow releases count alongside direct payments.
func (s *Service) Metrics(ctx context.Context) (PlatformMetrics, error) {
	if s.repo == nil {
		return PlatformMetrics{}, errors.New("reporting: repository not configured")
	}

	out := PlatformMetrics{TotalVolume: decimal.Zero, TotalFees: decimal.Zero}
	err := s.eachLeg(ctx, wallet.TransactionFilter{Status: wallet.StatusCompleted}, func(t wallet.Transaction) {
		out.TransactionCount++
		out.TotalVolume = out.TotalVolume.Add(t.Amount)
		switch t.Type {
		case wallet.TypePayment:
			out.TotalPayments++
		case wallet.TypeWithdrawal:
			out.TotalWithdrawals++
		}
	})
	if err != nil {
		return PlatformMetrics{}, err
	}

	for _, typ := range []wallet.TransactionType{wallet.TypePayment, wallet.TypeEscrowRelease} {
		err := s.eachLeg(ctx, wallet.TransactionFilter{Type: typ}, func(t wallet.Transaction) {
			if t.Direction == wallet.DirectionCredit {
				out.TotalFees = out.TotalFees.Add(t.FeeAmount)
			}
		})
		if err != nil {
			return PlatformMetrics{}, err
		}
	}
	return out, nil
}

// eachLeg pages through every leg matching f.
func (s *Service) eachLeg(ctx context.Context, f wallet.TransactionFilter, fn func(wallet.Transaction)) error {
	f.Limit = metricsPageSize
	for offset := 0; ; offset += metricsPageSize {
		f.Offset = offset
		page, total, err := s.repo.ListTransactions(ctx, f)
		if err != nil {
			return err
		}
		for _, t := range page {
			fn(t)
		}
		if len(page) == 0 || offset+len(page) >= total {
			return nil
		}
	}
}
