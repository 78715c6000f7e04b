package reporting

import (
	"context"
	"testing"
	"time"

	"wallet-ledger/internal/wallet"

	"github.com/shopspring/decimal"
)

type stubFees struct{}

func (stubFees) ResolveFeePercent(context.Context) decimal.Decimal { return decimal.NewFromInt(10) }

func seededLedger(t *testing.T, clock *time.Time) (*wallet.Service, *wallet.MemoryStore) {
	t.Helper()
	store := wallet.NewMemoryStore()
	svc := wallet.NewService(store, stubFees{}, wallet.Options{Clock: func() time.Time { return *clock }})
	return svc, store
}

func TestEarningsAndSpendingStats(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 12, 30, 9, 0, 0, 0, time.UTC) // ISO week 2025-W01
	svc, store := seededLedger(t, &now)

	if _, err := svc.Deposit(ctx, "client", decimal.NewFromInt(1000), ""); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	for _, amt := range []int64{100, 50} {
		if _, err := svc.Transfer(ctx, wallet.TransferRequest{FromUserID: "client", ToUserID: "freelancer", Amount: decimal.NewFromInt(amt)}); err != nil {
			t.Fatalf("transfer: %v", err)
		}
	}
	now = time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC)
	if _, err := svc.Transfer(ctx, wallet.TransferRequest{FromUserID: "client", ToUserID: "freelancer", Amount: decimal.NewFromInt(20)}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	rep := NewService(store)

	weekly, err := rep.EarningsStats(ctx, "freelancer", PeriodWeekly)
	if err != nil {
		t.Fatalf("earnings: %v", err)
	}
	if len(weekly) != 2 || weekly[0].Period != "2025-W01" || weekly[1].Period != "2025-W02" {
		t.Fatalf("unexpected weekly buckets %+v", weekly)
	}
	if !weekly[0].Total.Equal(decimal.NewFromInt(135)) || weekly[0].Count != 2 {
		t.Fatalf("expected 135 net over 2 invoices, got %+v", weekly[0])
	}

	monthly, err := rep.SpendingStats(ctx, "client", PeriodMonthly)
	if err != nil {
		t.Fatalf("spending: %v", err)
	}
	if len(monthly) != 2 || monthly[0].Period != "2024-12" || !monthly[0].Total.Equal(decimal.NewFromInt(135)) {
		t.Fatalf("unexpected monthly spending %+v", monthly)
	}

	none, err := rep.EarningsStats(ctx, "client", PeriodDaily)
	if err != nil || len(none) != 0 {
		t.Fatalf("client earned nothing, got %+v %v", none, err)
	}
}

func TestStats_RejectUnknownPeriod(t *testing.T) {
	rep := NewService(wallet.NewMemoryStore())
	if _, err := rep.EarningsStats(context.Background(), "u", "yearly"); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestLabel(t *testing.T) {
	at := time.Date(2021, 1, 3, 23, 0, 0, 0, time.UTC)
	if got := Label(at, PeriodDaily); got != "2021-01-03" {
		t.Fatalf("daily: %s", got)
	}
	if got := Label(at, PeriodWeekly); got != "2020-W53" {
		t.Fatalf("weekly: %s", got)
	}
	if got := Label(at, PeriodMonthly); got != "2021-01" {
		t.Fatalf("monthly: %s", got)
	}
}

func TestMetrics_CountsCompletedLegs(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	svc, store := seededLedger(t, &now)

	if _, err := svc.Deposit(ctx, "a", decimal.NewFromInt(200), ""); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.Transfer(ctx, wallet.TransferRequest{FromUserID: "a", ToUserID: "b", Amount: decimal.NewFromInt(100)}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := svc.Withdraw(ctx, "a", decimal.NewFromInt(50)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	m, err := NewService(store).Metrics(ctx)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	// deposit 200 + payer debit 100 + withdrawal 50; the payee leg is still pending.
	if m.TransactionCount != 3 || !m.TotalVolume.Equal(decimal.NewFromInt(350)) {
		t.Fatalf("unexpected metrics %+v", m)
	}
	if m.TotalPayments != 1 || m.TotalWithdrawals != 1 || !m.TotalFees.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestMetrics_FeesIncludeEscrowReleases(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	svc, store := seededLedger(t, &now)

	if _, err := svc.Deposit(ctx, "client", decimal.NewFromInt(500), ""); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.Transfer(ctx, wallet.TransferRequest{FromUserID: "client", ToUserID: "freelancer", Amount: decimal.NewFromInt(100)}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := svc.FundEscrow(ctx, "client", "c-1", "m-1", decimal.NewFromInt(200)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if _, err := svc.ReleaseEscrow(ctx, wallet.ReleaseRequest{ContractID: "c-1", MilestoneID: "m-1", PayeeID: "freelancer"}); err != nil {
		t.Fatalf("release: %v", err)
	}

	m, err := NewService(store).Metrics(ctx)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	// 10 on the transfer, 20 on the release.
	if !m.TotalFees.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected fees 30, got %s", m.TotalFees)
	}

	now = now.Add(10 * 24 * time.Hour)
	if _, err := svc.GetWallet(ctx, "freelancer"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	m, err = NewService(store).Metrics(ctx)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if !m.TotalFees.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("clearing must not change fees, got %s", m.TotalFees)
	}
}
