package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"wallet-ledger/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostgresStore persists the ledger in the tables created by internal/migrations:
// wallets, wallet_transactions, invoices, escrow_holds.
// Money columns are NUMERIC(20,2) and scan straight into decimal.Decimal.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const walletColumns = `id, user_id, balance, pending_balance, auto_withdrawal_enabled,
       auto_withdrawal_threshold, auto_withdrawal_schedule, auto_withdrawal_method_id,
       created_at, updated_at`

const transactionColumns = `t.id, t.wallet_id, t.amount, t.fee_amount, t.tax_amount, t.type, t.direction,
       t.status, t.cleared_at, t.settled_at, t.reference_id, t.invoice_id, t.description,
       t.created_at, t.updated_at`

const invoiceColumns = `id, invoice_number, sender_id, receiver_id, amount, fee_amount, tax_amount,
       status, items, paid_at, created_at`

const escrowColumns = `id, wallet_id, user_id, transaction_id, contract_id, milestone_id, amount,
       status, created_at, updated_at`

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(r rowScanner) (Wallet, error) {
	var (
		w         Wallet
		threshold decimal.NullDecimal
		schedule  sql.NullString
		method    sql.NullString
	)
	if err := r.Scan(
		&w.ID,
		&w.UserID,
		&w.Balance,
		&w.PendingBalance,
		&w.AutoWithdrawalEnabled,
		&threshold,
		&schedule,
		&method,
		&w.CreatedAt,
		&w.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	if threshold.Valid {
		v := threshold.Decimal
		w.AutoWithdrawalThreshold = &v
	}
	w.AutoWithdrawalSchedule = schedule.String
	w.AutoWithdrawalMethodID = method.String
	return w, nil
}

func scanTransaction(r rowScanner) (Transaction, error) {
	var (
		t         Transaction
		clearedAt sql.NullTime
		settledAt sql.NullTime
		reference sql.NullString
		invoiceID sql.NullString
	)
	if err := r.Scan(
		&t.ID,
		&t.WalletID,
		&t.Amount,
		&t.FeeAmount,
		&t.TaxAmount,
		&t.Type,
		&t.Direction,
		&t.Status,
		&clearedAt,
		&settledAt,
		&reference,
		&invoiceID,
		&t.Description,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	if clearedAt.Valid {
		v := clearedAt.Time
		t.ClearedAt = &v
	}
	if settledAt.Valid {
		v := settledAt.Time
		t.SettledAt = &v
	}
	t.ReferenceID = reference.String
	t.InvoiceID = invoiceID.String
	return t, nil
}

func scanInvoice(r rowScanner) (Invoice, error) {
	var inv Invoice
	if err := r.Scan(
		&inv.ID,
		&inv.InvoiceNumber,
		&inv.SenderID,
		&inv.ReceiverID,
		&inv.Amount,
		&inv.FeeAmount,
		&inv.TaxAmount,
		&inv.Status,
		&inv.Items,
		&inv.PaidAt,
		&inv.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func scanEscrow(r rowScanner) (EscrowHold, error) {
	var h EscrowHold
	if err := r.Scan(
		&h.ID,
		&h.WalletID,
		&h.UserID,
		&h.TransactionID,
		&h.ContractID,
		&h.MilestoneID,
		&h.Amount,
		&h.Status,
		&h.CreatedAt,
		&h.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return EscrowHold{}, ErrNotFound
		}
		return EscrowHold{}, err
	}
	return h, nil
}

func collectTransactions(rows *sql.Rows) ([]Transaction, error) {
	defer rows.Close()
	out := []Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}

// validUUID guards lookups by id: Postgres rejects malformed uuids with a
// syntax error, which callers should see as not found.
func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

/* ===================== WALLETS ===================== */

func (s *PostgresStore) EnsureWallet(ctx context.Context, userID string) (Wallet, error) {
	w, err := s.FindWalletByUser(ctx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Wallet{}, err
	}

	const q = `INSERT INTO wallets (id, user_id) VALUES ($1, $2)`
	if _, err := s.db.ExecContext(ctx, q, uuid.NewString(), userID); err != nil {
		// A concurrent first access won the insert; read its row.
		if !utils.IsUniqueViolation(err) {
			return Wallet{}, fmt.Errorf("create wallet: %w", err)
		}
	}
	return s.FindWalletByUser(ctx, userID)
}

func (s *PostgresStore) FindWalletByUser(ctx context.Context, userID string) (Wallet, error) {
	q := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	return scanWallet(s.db.QueryRowContext(ctx, q, userID))
}

func (s *PostgresStore) FindWalletByID(ctx context.Context, walletID string) (Wallet, error) {
	if !validUUID(walletID) {
		return Wallet{}, ErrWalletNotFound
	}
	q := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`
	return scanWallet(s.db.QueryRowContext(ctx, q, walletID))
}

func (s *PostgresStore) CountDueTransactions(ctx context.Context, walletID string, now time.Time) (int, error) {
	const q = `
SELECT COUNT(*)
FROM wallet_transactions
WHERE wallet_id = $1 AND status = 'PENDING' AND cleared_at <= $2
`
	var n int
	if err := s.db.QueryRowContext(ctx, q, walletID, now).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

/* ===================== TRANSACTIONS ===================== */

func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	if !validUUID(id) {
		return Transaction{}, ErrNotFound
	}
	q := `SELECT ` + transactionColumns + ` FROM wallet_transactions t WHERE t.id = $1`
	return scanTransaction(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) ListTransactionsByReference(ctx context.Context, referenceID string) ([]Transaction, error) {
	q := `SELECT ` + transactionColumns + `
FROM wallet_transactions t
WHERE t.reference_id = $1
ORDER BY t.created_at DESC, t.id DESC`
	rows, err := s.db.QueryContext(ctx, q, referenceID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (s *PostgresStore) ListWalletTransactions(ctx context.Context, walletID string) ([]Transaction, error) {
	q := `SELECT ` + transactionColumns + `
FROM wallet_transactions t
WHERE t.wallet_id = $1
ORDER BY t.created_at ASC, t.id ASC`
	rows, err := s.db.QueryContext(ctx, q, walletID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (s *PostgresStore) ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, int, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("w.user_id = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		where = append(where, fmt.Sprintf("t.type = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("t.status = $%d", len(args)))
	}

	from := ` FROM wallet_transactions t JOIN wallets w ON w.id = t.wallet_id`
	if len(where) > 0 {
		from += ` WHERE ` + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageArgs := append(append([]any{}, args...), f.Limit, f.Offset)
	q := `SELECT ` + transactionColumns + from +
		fmt.Sprintf(` ORDER BY t.created_at DESC, t.id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := s.db.QueryContext(ctx, q, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collectTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

/* ===================== INVOICES ===================== */

func (s *PostgresStore) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	if !validUUID(id) {
		return Invoice{}, ErrNotFound
	}
	q := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	return scanInvoice(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) ListInvoices(ctx context.Context, userID string) ([]Invoice, error) {
	q := `SELECT ` + invoiceColumns + `
FROM invoices
WHERE sender_id = $1 OR receiver_id = $1
ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

/* ===================== UNIT OF WORK ===================== */

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) error {
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &pgTx{q: tx})
	})
	if err != nil && utils.IsRetryableConflict(err) {
		return fmt.Errorf("%w: %v", ErrStorageConflict, err)
	}
	return err
}

type pgTx struct {
	q queryer
}

func (t *pgTx) LockWallet(ctx context.Context, userID string) (Wallet, error) {
	// Row lock serializes money operations per wallet.
	q := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 FOR UPDATE`
	return scanWallet(t.q.QueryRowContext(ctx, q, userID))
}

func (t *pgTx) LockDueTransactions(ctx context.Context, walletID string, now time.Time) ([]Transaction, error) {
	q := `SELECT ` + transactionColumns + `
FROM wallet_transactions t
WHERE t.wallet_id = $1 AND t.status = 'PENDING' AND t.cleared_at <= $2
ORDER BY t.created_at ASC, t.id ASC
FOR UPDATE`
	rows, err := t.q.QueryContext(ctx, q, walletID, now)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (t *pgTx) ApplyWalletDelta(ctx context.Context, walletID string, balanceDelta, pendingDelta decimal.Decimal, now time.Time) (Wallet, error) {
	q := `UPDATE wallets
SET balance = balance + $2,
    pending_balance = pending_balance + $3,
    updated_at = $4
WHERE id = $1
RETURNING ` + walletColumns
	w, err := scanWallet(t.q.QueryRowContext(ctx, q, walletID, balanceDelta, pendingDelta, now))
	if err != nil && utils.IsCheckViolation(err) {
		return Wallet{}, ErrInsufficientFunds
	}
	return w, err
}

func (t *pgTx) UpdateAutoWithdrawal(ctx context.Context, walletID string, s AutoWithdrawalSettings, now time.Time) (Wallet, error) {
	q := `UPDATE wallets
SET auto_withdrawal_enabled = $2,
    auto_withdrawal_threshold = $3,
    auto_withdrawal_schedule = $4,
    auto_withdrawal_method_id = $5,
    updated_at = $6
WHERE id = $1
RETURNING ` + walletColumns
	return scanWallet(t.q.QueryRowContext(ctx, q,
		walletID,
		s.Enabled,
		nullDecimal(s.Threshold),
		nullString(s.Schedule),
		nullString(s.MethodID),
		now,
	))
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr Transaction) error {
	const q = `
INSERT INTO wallet_transactions (
  id, wallet_id, amount, fee_amount, tax_amount, type, direction, status,
  cleared_at, settled_at, reference_id, invoice_id, description, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
`
	_, err := t.q.ExecContext(ctx, q,
		tr.ID,
		tr.WalletID,
		tr.Amount,
		tr.FeeAmount,
		tr.TaxAmount,
		string(tr.Type),
		string(tr.Direction),
		string(tr.Status),
		nullTime(tr.ClearedAt),
		nullTime(tr.SettledAt),
		nullString(tr.ReferenceID),
		nullString(tr.InvoiceID),
		tr.Description,
		tr.CreatedAt,
		tr.UpdatedAt,
	)
	return err
}

func (t *pgTx) LockTransaction(ctx context.Context, id string) (Transaction, error) {
	if !validUUID(id) {
		return Transaction{}, ErrNotFound
	}
	q := `SELECT ` + transactionColumns + ` FROM wallet_transactions t WHERE t.id = $1 FOR UPDATE`
	return scanTransaction(t.q.QueryRowContext(ctx, q, id))
}

func (t *pgTx) MarkSettled(ctx context.Context, id string, at time.Time) error {
	const q = `
UPDATE wallet_transactions
SET status = 'COMPLETED', settled_at = $2, updated_at = $2
WHERE id = $1 AND status = 'PENDING'
`
	res, err := t.q.ExecContext(ctx, q, id, at)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (t *pgTx) SetTransactionStatus(ctx context.Context, id string, status TransactionStatus, now time.Time) error {
	const q = `UPDATE wallet_transactions SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := t.q.ExecContext(ctx, q, id, string(status), now)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (t *pgTx) InsertInvoice(ctx context.Context, inv Invoice) error {
	const q = `
INSERT INTO invoices (
  id, invoice_number, sender_id, receiver_id, amount, fee_amount, tax_amount,
  status, items, paid_at, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
`
	_, err := t.q.ExecContext(ctx, q,
		inv.ID,
		inv.InvoiceNumber,
		inv.SenderID,
		inv.ReceiverID,
		inv.Amount,
		inv.FeeAmount,
		inv.TaxAmount,
		string(inv.Status),
		inv.Items,
		inv.PaidAt,
		inv.CreatedAt,
	)
	return err
}

func (t *pgTx) InsertEscrowHold(ctx context.Context, h EscrowHold) error {
	const q = `
INSERT INTO escrow_holds (
  id, wallet_id, user_id, transaction_id, contract_id, milestone_id, amount, status, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := t.q.ExecContext(ctx, q,
		h.ID,
		h.WalletID,
		h.UserID,
		h.TransactionID,
		h.ContractID,
		h.MilestoneID,
		h.Amount,
		string(h.Status),
		h.CreatedAt,
		h.UpdatedAt,
	)
	if err != nil && utils.IsUniqueViolation(err) {
		return ErrEscrowConflict
	}
	return err
}

func (t *pgTx) LockHeldEscrow(ctx context.Context, contractID, milestoneID string) (EscrowHold, error) {
	q := `SELECT ` + escrowColumns + `
FROM escrow_holds
WHERE contract_id = $1 AND milestone_id = $2 AND status = 'HELD'
FOR UPDATE`
	return scanEscrow(t.q.QueryRowContext(ctx, q, contractID, milestoneID))
}

func (t *pgTx) SetEscrowStatus(ctx context.Context, id string, status EscrowStatus, now time.Time) error {
	const q = `UPDATE escrow_holds SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := t.q.ExecContext(ctx, q, id, string(status), now)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrNotFound
	}
	return nil
}
