package wallet

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"wallet-ledger/pkg/logger"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// FeeResolver returns the platform fee percentage in [0, 100].
// It never fails; implementations fall back to a configured default.
type FeeResolver interface {
	ResolveFeePercent(ctx context.Context) decimal.Decimal
}

// Options tunes a Service. Zero values select defaults.
type Options struct {
	// ClearingPeriod is how long credited funds stay pending. Default 5 days.
	ClearingPeriod time.Duration
	// MaxAttempts bounds retries of a unit of work on storage conflicts. Default 3.
	MaxAttempts int

	Clock    func() time.Time
	Logger   *slog.Logger
	Events   EventSink
	Observer Observer
}

// Service is the ledger: wallets, clearing, transfers, invoices, escrow.
//
// Money invariants:
// - every balance change is written together with a transaction leg
// - transaction legs and invoices are append-only
// - all money operations run inside one Store unit of work
type Service struct {
	store          Store
	fees           FeeResolver
	clearingPeriod time.Duration
	maxAttempts    int
	// clock is injectable for deterministic tests.
	clock    func() time.Time
	log      *slog.Logger
	events   EventSink
	observer Observer
}

func NewService(store Store, fees FeeResolver, opts Options) *Service {
	s := &Service{
		store:          store,
		fees:           fees,
		clearingPeriod: opts.ClearingPeriod,
		maxAttempts:    opts.MaxAttempts,
		clock:          opts.Clock,
		log:            opts.Logger,
		events:         opts.Events,
		observer:       opts.Observer,
	}
	if s.clearingPeriod <= 0 {
		s.clearingPeriod = 5 * 24 * time.Hour
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 3
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	return s
}

// opFields identify an operation in failure logs.
type opFields struct {
	userID      string
	amount      decimal.Decimal
	referenceID string
}

func (s *Service) now() time.Time { return s.clock().UTC() }

// run executes fn as one unit of work, retrying storage conflicts.
// Domain errors pass through; everything else becomes ErrTransferFailed.
func (s *Service) run(ctx context.Context, op string, f opFields, fn func(ctx context.Context, tx StoreTx) error) error {
	start := time.Now()

	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.store.InTx(ctx, fn)
		if !errors.Is(err, ErrStorageConflict) {
			break
		}
		s.observer.ObserveRetry(op)
		s.logFor(ctx).Debug("ledger unit of work conflicted", "operation", op, "attempt", attempt)
	}

	err = s.classify(ctx, op, f, err)
	s.observer.ObserveOperation(op, err, time.Since(start))
	return err
}

func (s *Service) classify(ctx context.Context, op string, f opFields, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	s.logFor(ctx).Error("ledger operation failed",
		"operation", op,
		"user_id", f.userID,
		"amount", f.amount.StringFixed(2),
		"reference_id", f.referenceID,
		"err", err,
	)
	return ErrTransferFailed
}

func (s *Service) logFor(ctx context.Context) *slog.Logger {
	if l := logger.From(ctx); l != slog.Default() {
		return l
	}
	return s.log
}

func (s *Service) emit(ctx context.Context, e Event) {
	if s.events == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now()
	}
	if err := s.events.Record(ctx, e); err != nil {
		s.logFor(ctx).Warn("ledger event not recorded", "event", string(e.Type), "err", err)
	}
}

// validateAmount accepts positive values with at most two decimal places.
func validateAmount(a decimal.Decimal) error {
	if !a.IsPositive() || !a.Equal(a.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}

func validUserID(id string) bool {
	return strings.TrimSpace(id) != ""
}

var hundred = decimal.NewFromInt(100)

// splitFee returns (fee, net) for amount at percent, fee rounded to cents.
func splitFee(amount, percent decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	fee := amount.Mul(percent).Div(hundred).Round(2)
	return fee, amount.Sub(fee)
}

func newInvoiceNumber(at time.Time) string {
	return "INV-" + ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}

func newID() string { return uuid.NewString() }

// GetWallet returns the user's wallet after settling any due pending funds.
// The wallet is created on first access.
func (s *Service) GetWallet(ctx context.Context, userID string) (Wallet, error) {
	if !validUserID(userID) {
		return Wallet{}, ErrInvalidArgument
	}
	w, err := s.store.EnsureWallet(ctx, userID)
	if err != nil {
		return Wallet{}, s.classify(ctx, "get_wallet", opFields{userID: userID}, err)
	}

	now := s.now()
	n, err := s.store.CountDueTransactions(ctx, w.ID, now)
	if err != nil {
		return Wallet{}, s.classify(ctx, "get_wallet", opFields{userID: userID}, err)
	}
	if n == 0 {
		return w, nil
	}

	var (
		out     Wallet
		cleared int
		amount  decimal.Decimal
	)
	err = s.run(ctx, "clear", opFields{userID: userID}, func(ctx context.Context, tx StoreTx) error {
		locked, err := tx.LockWallet(ctx, userID)
		if err != nil {
			return err
		}
		out, cleared, amount, err = s.clearDue(ctx, tx, locked, now)
		return err
	})
	if err != nil {
		return Wallet{}, err
	}
	s.afterClear(ctx, userID, cleared, amount, now)
	return out, nil
}
