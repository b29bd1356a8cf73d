package ojomine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request statuses.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// WithdrawalRequest reserves withdrawable funds at creation time; the linked
// ledger debit stays pending until an administrator resolves the request.
type WithdrawalRequest struct {
	Id            uint            `json:"id" gorm:"primarykey"`
	CreatedAt     time.Time       `json:"created_at"`
	UserId        uint            `json:"user_id" gorm:"index"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:numeric"`
	WalletAddress string          `json:"wallet_address"`
	Status        string          `json:"status" gorm:"index;default:pending"`
	AdminNotes    string          `json:"admin_notes"`
	Reference     string          `json:"reference" gorm:"index"`
	ProcessedAt   *time.Time      `json:"processed_at"`
}

// RefillRequest carries an external proof of payment; funds are only
// credited when an administrator approves it.
type RefillRequest struct {
	Id              uint            `json:"id" gorm:"primarykey"`
	CreatedAt       time.Time       `json:"created_at"`
	UserId          uint            `json:"user_id" gorm:"index"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:numeric"`
	TransactionHash string          `json:"transaction_hash"`
	Status          string          `json:"status" gorm:"index;default:pending"`
	AdminNotes      string          `json:"admin_notes"`
	Reference       string          `json:"reference" gorm:"index"`
	ProcessedAt     *time.Time      `json:"processed_at"`
}
