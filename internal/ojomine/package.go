package ojomine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Offering statuses.
const (
	PackageOfferActive   = "active"
	PackageOfferInactive = "inactive"
)

// Owned package lifecycle statuses.
const (
	PackageActive    = "active"
	PackageCompleted = "completed"
	PackageWithdrawn = "withdrawn"
)

// Package is a catalog offering. Purchases snapshot the price, so later
// price edits never affect already-purchased packages.
type Package struct {
	Id        uint            `json:"id" gorm:"primarykey"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Name      string          `gorm:"not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:numeric;not null" json:"price"`
	Status    string          `gorm:"not null;default:active;index" json:"status"`
}

// UserPackage is one purchase. It is never deleted: it is the audit trail
// for bonus entitlement.
type UserPackage struct {
	Id            uint            `json:"id" gorm:"primarykey"`
	CreatedAt     time.Time       `json:"created_at"`
	UserId        uint            `json:"user_id" gorm:"index"`
	PackageId     uint            `json:"package_id" gorm:"index"`
	Price         decimal.Decimal `json:"price" gorm:"type:numeric"` // snapshot at purchase
	PurchaseDate  time.Time       `json:"purchase_date"`
	CurrentCycle  uint            `json:"current_cycle"`
	TotalCycles   uint            `json:"total_cycles"`
	Status        string          `json:"status" gorm:"index"`
	NextBonusDate time.Time       `json:"next_bonus_date" gorm:"index"`
}

// MonthlyBonus exists once per (owned package, cycle). The unique index is
// the idempotency guard against double-payment.
type MonthlyBonus struct {
	Id            uint            `json:"id" gorm:"primarykey"`
	CreatedAt     time.Time       `json:"created_at"`
	UserId        uint            `json:"user_id" gorm:"index"`
	PackageId     uint            `json:"package_id"`
	UserPackageId uint            `json:"user_package_id" gorm:"uniqueIndex:idx_bonus_once"`
	CycleNumber   uint            `json:"cycle_number" gorm:"uniqueIndex:idx_bonus_once"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:numeric"`
}
