package wallet

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a user's spendable and pending funds.
// Invariant: Balance and PendingBalance never go negative, and change only
// together with a Transaction written in the same unit of work.
type Wallet struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	Balance        decimal.Decimal `json:"balance"`
	PendingBalance decimal.Decimal `json:"pendingBalance"`

	// Auto-withdrawal policy. Stored only; nothing here executes payouts.
	AutoWithdrawalEnabled   bool             `json:"autoWithdrawalEnabled"`
	AutoWithdrawalThreshold *decimal.Decimal `json:"autoWithdrawalThreshold,omitempty"`
	AutoWithdrawalSchedule  string           `json:"autoWithdrawalSchedule,omitempty"`
	AutoWithdrawalMethodID  string           `json:"autoWithdrawalMethodId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type TransactionType string

const (
	TypeDeposit       TransactionType = "DEPOSIT"
	TypeWithdrawal    TransactionType = "WITHDRAWAL"
	TypePayment       TransactionType = "PAYMENT"
	TypeEscrowFund    TransactionType = "ESCROW_FUND"
	TypeEscrowRelease TransactionType = "ESCROW_RELEASE"
	TypeEscrowRefund  TransactionType = "ESCROW_REFUND"
	TypeSubscription  TransactionType = "SUBSCRIPTION"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypePayment, TypeEscrowFund, TypeEscrowRelease, TypeEscrowRefund, TypeSubscription:
		return true
	default:
		return false
	}
}

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusRefunded  TransactionStatus = "REFUNDED"
	StatusDisputed  TransactionStatus = "DISPUTED"
	StatusFailed    TransactionStatus = "FAILED"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusRefunded, StatusDisputed, StatusFailed:
		return true
	default:
		return false
	}
}

// Direction records which side of the wallet a leg touches. Amounts are never signed.
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// Transaction is one append-only leg of a money movement.
// Only Status and SettledAt change after insert.
type Transaction struct {
	ID          string            `json:"id"`
	WalletID    string            `json:"walletId"`
	Amount      decimal.Decimal   `json:"amount"`
	FeeAmount   decimal.Decimal   `json:"feeAmount"`
	TaxAmount   decimal.Decimal   `json:"taxAmount"`
	Type        TransactionType   `json:"type"`
	Direction   Direction         `json:"direction"`
	Status      TransactionStatus `json:"status"`
	ClearedAt   *time.Time        `json:"clearedAt,omitempty"`
	SettledAt   *time.Time        `json:"settledAt,omitempty"`
	ReferenceID string            `json:"referenceId,omitempty"`
	InvoiceID   string            `json:"invoiceId,omitempty"`
	Description string            `json:"description"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

type InvoiceStatus string

const InvoicePaid InvoiceStatus = "PAID"

// InvoiceItem is the fixed line-item shape stored on every invoice.
type InvoiceItem struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	GrossAmount decimal.Decimal `json:"grossAmount"`
	FeeAmount   decimal.Decimal `json:"feeAmount"`
	NetAmount   decimal.Decimal `json:"netAmount"`
}

// InvoiceItems is persisted as a JSONB column.
type InvoiceItems []InvoiceItem

func (it InvoiceItems) Value() (driver.Value, error) {
	if it == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(it)
}

func (it *InvoiceItems) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*it = InvoiceItems{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("invoice items: unsupported column type")
	}
	return json.Unmarshal(raw, it)
}

// Invoice is immutable once written.
type Invoice struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoiceNumber"`
	SenderID      string          `json:"senderId"`
	ReceiverID    string          `json:"receiverId"`
	Amount        decimal.Decimal `json:"amount"`
	FeeAmount     decimal.Decimal `json:"feeAmount"`
	TaxAmount     decimal.Decimal `json:"taxAmount"`
	Status        InvoiceStatus   `json:"status"`
	Items         InvoiceItems    `json:"items"`
	PaidAt        time.Time       `json:"paidAt"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// InvoiceData is the read model handed to invoice renderers.
type InvoiceData struct {
	InvoiceNumber string            `json:"invoiceNumber"`
	Date          time.Time         `json:"date"`
	Amount        decimal.Decimal   `json:"amount"`
	FeeAmount     decimal.Decimal   `json:"feeAmount"`
	TaxAmount     decimal.Decimal   `json:"taxAmount"`
	TotalAmount   decimal.Decimal   `json:"totalAmount"`
	Description   string            `json:"description"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	UserID        string            `json:"userId"`
	ReferenceID   string            `json:"referenceId,omitempty"`
}

type EscrowStatus string

const (
	EscrowHeld     EscrowStatus = "HELD"
	EscrowReleased EscrowStatus = "RELEASED"
	EscrowRefunded EscrowStatus = "REFUNDED"
)

// EscrowHold tracks funds debited from a funder and not yet paid out or returned.
// At most one HELD hold exists per (ContractID, MilestoneID).
type EscrowHold struct {
	ID            string          `json:"id"`
	WalletID      string          `json:"walletId"`
	UserID        string          `json:"userId"`
	TransactionID string          `json:"transactionId"`
	ContractID    string          `json:"contractId"`
	MilestoneID   string          `json:"milestoneId"`
	Amount        decimal.Decimal `json:"amount"`
	Status        EscrowStatus    `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// AutoWithdrawalSettings is the policy payload accepted by UpdateAutoWithdrawal.
type AutoWithdrawalSettings struct {
	Enabled   bool             `json:"enabled"`
	Threshold *decimal.Decimal `json:"threshold,omitempty"`
	Schedule  string           `json:"schedule,omitempty"`
	MethodID  string           `json:"methodId,omitempty"`
}

// TransactionFilter narrows ListTransactions. Empty fields match everything.
type TransactionFilter struct {
	UserID string
	Type   TransactionType
	Status TransactionStatus
	Limit  int
	Offset int
}

type TransactionPage struct {
	Total int           `json:"total"`
	Data  []Transaction `json:"data"`
}

// TransferResult identifies the invoice written for a completed transfer or release.
type TransferResult struct {
	InvoiceID string `json:"invoiceId"`
}
