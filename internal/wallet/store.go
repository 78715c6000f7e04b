package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the persistence boundary of the ledger.
// Reads outside InTx see committed state only.
type Store interface {
	// EnsureWallet returns the user's wallet, creating it with zero balances on
	// first access. Concurrent first accesses resolve to a single row.
	EnsureWallet(ctx context.Context, userID string) (Wallet, error)
	FindWalletByUser(ctx context.Context, userID string) (Wallet, error)
	FindWalletByID(ctx context.Context, walletID string) (Wallet, error)
	// CountDueTransactions counts PENDING legs with cleared_at <= now.
	CountDueTransactions(ctx context.Context, walletID string, now time.Time) (int, error)

	GetTransaction(ctx context.Context, id string) (Transaction, error)
	ListTransactionsByReference(ctx context.Context, referenceID string) ([]Transaction, error)
	ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, int, error)
	ListWalletTransactions(ctx context.Context, walletID string) ([]Transaction, error)

	GetInvoice(ctx context.Context, id string) (Invoice, error)
	ListInvoices(ctx context.Context, userID string) ([]Invoice, error)

	// InTx runs fn in one atomic unit of work. Any error rolls back every write.
	InTx(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) error
}

// StoreTx is the write surface available inside a unit of work.
// Lock* methods hold the row until the unit of work ends.
type StoreTx interface {
	LockWallet(ctx context.Context, userID string) (Wallet, error)
	// LockDueTransactions returns PENDING legs of the wallet with cleared_at <= now.
	LockDueTransactions(ctx context.Context, walletID string, now time.Time) ([]Transaction, error)
	ApplyWalletDelta(ctx context.Context, walletID string, balanceDelta, pendingDelta decimal.Decimal, now time.Time) (Wallet, error)
	UpdateAutoWithdrawal(ctx context.Context, walletID string, s AutoWithdrawalSettings, now time.Time) (Wallet, error)

	InsertTransaction(ctx context.Context, t Transaction) error
	LockTransaction(ctx context.Context, id string) (Transaction, error)
	MarkSettled(ctx context.Context, id string, at time.Time) error
	SetTransactionStatus(ctx context.Context, id string, status TransactionStatus, now time.Time) error

	InsertInvoice(ctx context.Context, inv Invoice) error

	InsertEscrowHold(ctx context.Context, h EscrowHold) error
	LockHeldEscrow(ctx context.Context, contractID, milestoneID string) (EscrowHold, error)
	SetEscrowStatus(ctx context.Context, id string, status EscrowStatus, now time.Time) error
}
