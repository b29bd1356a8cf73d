package ojomine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types.
const (
	TxPurchase         = "purchase"
	TxDeposit          = "deposit"
	TxWithdrawal       = "withdrawal"
	TxWithdrawalRefund = "withdrawal_refund"
	TxReferral         = "referral"
	TxBonus            = "bonus"
	TxTransfer         = "transfer"
	TxTransferCharge   = "transfer_charge"
	TxRefund           = "refund"
)

// Transaction statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Ewallet carries the balance and its cash-out eligible subset. Both columns
// are only ever changed by the same guarded UPDATE, so Withdrawable always
// equals the sum of the withdrawable-flagged transaction amounts.
type Ewallet struct {
	UserId       uint            `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	Balance      decimal.Decimal `json:"balance" gorm:"type:numeric;not null"`
	Withdrawable decimal.Decimal `json:"withdrawable" gorm:"type:numeric;not null"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// EwalletTransaction is an immutable ledger record. Amount and type never
// change after creation; status may move pending -> completed or
// pending -> failed.
type EwalletTransaction struct {
	CreatedAt      time.Time       `json:"created_at"`
	Txid           uint            `json:"txid" gorm:"primaryKey;autoIncrement:true"`
	UserId         uint            `json:"user_id" gorm:"index"` // whose balance is affected
	Type           string          `json:"type" gorm:"index"`
	Status         string          `json:"status" gorm:"index"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:numeric"` // signed
	Description    string          `json:"description"`
	ReferenceId    uint            `json:"reference_id" gorm:"index"` // originating domain object
	IsWithdrawable bool            `json:"is_withdrawable"`
}

// StatusForType assigns the initial status of a transaction. Withdrawal and
// refill-deposit rows stay pending until the approval workflow resolves the
// linked request; everything else is final at creation.
func StatusForType(txType string) string {
	switch txType {
	case TxWithdrawal, TxDeposit:
		return StatusPending
	default:
		return StatusCompleted
	}
}

// WithdrawableForType flags which credited funds count toward the cash-out
// eligible sub-balance. Funds moved by transfer or spent on packages do not.
func WithdrawableForType(txType string) bool {
	switch txType {
	case TxTransfer, TxPurchase:
		return false
	default:
		return true
	}
}
