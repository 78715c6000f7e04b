package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store used by tests and local runs.
// Units of work execute one at a time against a copy of the state; the copy
// replaces the live state only when fn returns nil.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
	now   func() time.Time

	// FailOn, when set, is consulted before every StoreTx write. A non-nil
	// return aborts the unit of work with that error.
	FailOn func(op string) error
}

type memState struct {
	seq      int64
	wallets  map[string]Wallet // by wallet id
	byUser   map[string]string // user id -> wallet id
	txs      map[string]Transaction
	txSeq    map[string]int64
	invoices map[string]Invoice
	invSeq   map[string]int64
	escrow   map[string]EscrowHold
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now: time.Now,
		state: memState{
			wallets:  map[string]Wallet{},
			byUser:   map[string]string{},
			txs:      map[string]Transaction{},
			txSeq:    map[string]int64{},
			invoices: map[string]Invoice{},
			invSeq:   map[string]int64{},
			escrow:   map[string]EscrowHold{},
		},
	}
}

func (s memState) clone() memState {
	out := memState{
		seq:      s.seq,
		wallets:  make(map[string]Wallet, len(s.wallets)),
		byUser:   make(map[string]string, len(s.byUser)),
		txs:      make(map[string]Transaction, len(s.txs)),
		txSeq:    make(map[string]int64, len(s.txSeq)),
		invoices: make(map[string]Invoice, len(s.invoices)),
		invSeq:   make(map[string]int64, len(s.invSeq)),
		escrow:   make(map[string]EscrowHold, len(s.escrow)),
	}
	for k, v := range s.wallets {
		out.wallets[k] = v
	}
	for k, v := range s.byUser {
		out.byUser[k] = v
	}
	for k, v := range s.txs {
		out.txs[k] = v
	}
	for k, v := range s.txSeq {
		out.txSeq[k] = v
	}
	for k, v := range s.invoices {
		out.invoices[k] = v
	}
	for k, v := range s.invSeq {
		out.invSeq[k] = v
	}
	for k, v := range s.escrow {
		out.escrow[k] = v
	}
	return out
}

func (m *MemoryStore) EnsureWallet(_ context.Context, userID string) (Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.state.byUser[userID]; ok {
		return m.state.wallets[id], nil
	}
	now := m.now().UTC()
	w := Wallet{
		ID:             uuid.NewString(),
		UserID:         userID,
		Balance:        decimal.Zero,
		PendingBalance: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.state.wallets[w.ID] = w
	m.state.byUser[userID] = w.ID
	return w, nil
}

func (m *MemoryStore) FindWalletByUser(_ context.Context, userID string) (Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.state.byUser[userID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return m.state.wallets[id], nil
}

func (m *MemoryStore) FindWalletByID(_ context.Context, walletID string) (Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.state.wallets[walletID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (m *MemoryStore) CountDueTransactions(_ context.Context, walletID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.due(walletID, now)), nil
}

func (s memState) due(walletID string, now time.Time) []Transaction {
	var out []Transaction
	for _, t := range s.sortedTxs(false) {
		if t.WalletID == walletID && t.Status == StatusPending && t.ClearedAt != nil && !t.ClearedAt.After(now) {
			out = append(out, t)
		}
	}
	return out
}

// sortedTxs orders by creation time, ties broken by insertion order.
func (s memState) sortedTxs(newestFirst bool) []Transaction {
	out := make([]Transaction, 0, len(s.txs))
	for _, t := range s.txs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		less := a.CreatedAt.Before(b.CreatedAt) ||
			(a.CreatedAt.Equal(b.CreatedAt) && s.txSeq[a.ID] < s.txSeq[b.ID])
		if newestFirst {
			return !less
		}
		return less
	})
	return out
}

func (m *MemoryStore) GetTransaction(_ context.Context, id string) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.state.txs[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return t, nil
}

func (m *MemoryStore) ListTransactionsByReference(_ context.Context, referenceID string) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Transaction{}
	for _, t := range m.state.sortedTxs(true) {
		if t.ReferenceID == referenceID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListWalletTransactions(_ context.Context, walletID string) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Transaction{}
	for _, t := range m.state.sortedTxs(false) {
		if t.WalletID == walletID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListTransactions(_ context.Context, f TransactionFilter) ([]Transaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	walletID := ""
	if f.UserID != "" {
		id, ok := m.state.byUser[f.UserID]
		if !ok {
			return []Transaction{}, 0, nil
		}
		walletID = id
	}

	var matched []Transaction
	for _, t := range m.state.sortedTxs(true) {
		if walletID != "" && t.WalletID != walletID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		matched = append(matched, t)
	}

	total := len(matched)
	start := f.Offset
	if start > total {
		start = total
	}
	end := total
	if f.Limit > 0 && start+f.Limit < end {
		end = start + f.Limit
	}
	out := append([]Transaction{}, matched[start:end]...)
	return out, total, nil
}

func (m *MemoryStore) GetInvoice(_ context.Context, id string) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.state.invoices[id]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (m *MemoryStore) ListInvoices(_ context.Context, userID string) ([]Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Invoice{}
	for _, inv := range m.state.invoices {
		if inv.SenderID == userID || inv.ReceiverID == userID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return m.state.invSeq[a.ID] > m.state.invSeq[b.ID]
	})
	return out, nil
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, &memTx{state: &work, failOn: m.FailOn}); err != nil {
		return err
	}
	m.state = work
	return nil
}

type memTx struct {
	state  *memState
	failOn func(op string) error
}

func (t *memTx) check(op string) error {
	if t.failOn == nil {
		return nil
	}
	return t.failOn(op)
}

func (t *memTx) LockWallet(_ context.Context, userID string) (Wallet, error) {
	id, ok := t.state.byUser[userID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return t.state.wallets[id], nil
}

func (t *memTx) LockDueTransactions(_ context.Context, walletID string, now time.Time) ([]Transaction, error) {
	return t.state.due(walletID, now), nil
}

func (t *memTx) ApplyWalletDelta(_ context.Context, walletID string, balanceDelta, pendingDelta decimal.Decimal, now time.Time) (Wallet, error) {
	if err := t.check("ApplyWalletDelta"); err != nil {
		return Wallet{}, err
	}
	w, ok := t.state.wallets[walletID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	w.Balance = w.Balance.Add(balanceDelta)
	w.PendingBalance = w.PendingBalance.Add(pendingDelta)
	if w.Balance.IsNegative() || w.PendingBalance.IsNegative() {
		return Wallet{}, ErrInsufficientFunds
	}
	w.UpdatedAt = now
	t.state.wallets[walletID] = w
	return w, nil
}

func (t *memTx) UpdateAutoWithdrawal(_ context.Context, walletID string, s AutoWithdrawalSettings, now time.Time) (Wallet, error) {
	if err := t.check("UpdateAutoWithdrawal"); err != nil {
		return Wallet{}, err
	}
	w, ok := t.state.wallets[walletID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	w.AutoWithdrawalEnabled = s.Enabled
	w.AutoWithdrawalThreshold = s.Threshold
	w.AutoWithdrawalSchedule = s.Schedule
	w.AutoWithdrawalMethodID = s.MethodID
	w.UpdatedAt = now
	t.state.wallets[walletID] = w
	return w, nil
}

func (t *memTx) InsertTransaction(_ context.Context, tr Transaction) error {
	if err := t.check("InsertTransaction"); err != nil {
		return err
	}
	t.state.seq++
	t.state.txs[tr.ID] = tr
	t.state.txSeq[tr.ID] = t.state.seq
	return nil
}

func (t *memTx) LockTransaction(_ context.Context, id string) (Transaction, error) {
	tr, ok := t.state.txs[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return tr, nil
}

func (t *memTx) MarkSettled(_ context.Context, id string, at time.Time) error {
	if err := t.check("MarkSettled"); err != nil {
		return err
	}
	tr, ok := t.state.txs[id]
	if !ok || tr.Status != StatusPending {
		return ErrNotFound
	}
	settled := at
	tr.Status = StatusCompleted
	tr.SettledAt = &settled
	tr.UpdatedAt = at
	t.state.txs[id] = tr
	return nil
}

func (t *memTx) SetTransactionStatus(_ context.Context, id string, status TransactionStatus, now time.Time) error {
	if err := t.check("SetTransactionStatus"); err != nil {
		return err
	}
	tr, ok := t.state.txs[id]
	if !ok {
		return ErrNotFound
	}
	tr.Status = status
	tr.UpdatedAt = now
	t.state.txs[id] = tr
	return nil
}

func (t *memTx) InsertInvoice(_ context.Context, inv Invoice) error {
	if err := t.check("InsertInvoice"); err != nil {
		return err
	}
	for _, existing := range t.state.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return ErrInvalidArgument
		}
	}
	t.state.seq++
	t.state.invoices[inv.ID] = inv
	t.state.invSeq[inv.ID] = t.state.seq
	return nil
}

func (t *memTx) InsertEscrowHold(_ context.Context, h EscrowHold) error {
	if err := t.check("InsertEscrowHold"); err != nil {
		return err
	}
	for _, existing := range t.state.escrow {
		if existing.Status == EscrowHeld && existing.ContractID == h.ContractID && existing.MilestoneID == h.MilestoneID {
			return ErrEscrowConflict
		}
	}
	t.state.escrow[h.ID] = h
	return nil
}

func (t *memTx) LockHeldEscrow(_ context.Context, contractID, milestoneID string) (EscrowHold, error) {
	for _, h := range t.state.escrow {
		if h.Status == EscrowHeld && h.ContractID == contractID && h.MilestoneID == milestoneID {
			return h, nil
		}
	}
	return EscrowHold{}, ErrNotFound
}

func (t *memTx) SetEscrowStatus(_ context.Context, id string, status EscrowStatus, now time.Time) error {
	if err := t.check("SetEscrowStatus"); err != nil {
		return err
	}
	h, ok := t.state.escrow[id]
	if !ok {
		return ErrNotFound
	}
	h.Status = status
	h.UpdatedAt = now
	t.state.escrow[id] = h
	return nil
}

// EscrowHolds returns a snapshot of all holds. Used by tests and reconciliation.
func (m *MemoryStore) EscrowHolds() []EscrowHold {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EscrowHold, 0, len(m.state.escrow))
	for _, h := range m.state.escrow {
		out = append(out, h)
	}
	return out
}

// Wallets returns a snapshot of all wallets.
func (m *MemoryStore) Wallets() []Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Wallet, 0, len(m.state.wallets))
	for _, w := range m.state.wallets {
		out = append(out, w)
	}
	return out
}
