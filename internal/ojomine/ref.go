package ojomine

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferralBonus is written once per eligible ancestor per purchase. The
// unique index over (sponsor, purchase, level) gates commission crediting so
// a retried payout never pays the same level twice.
type ReferralBonus struct {
	Id             uint            `json:"id" gorm:"primarykey"`
	CreatedAt      time.Time       `json:"created_at"`
	UserId         uint            `json:"user_id" gorm:"index;uniqueIndex:idx_ref_once"` // sponsor being paid
	ReferredUserId uint            `json:"referred_user_id" gorm:"index"`                 // buyer
	Level          uint            `json:"level" gorm:"uniqueIndex:idx_ref_once"`
	UserPackageId  uint            `json:"user_package_id" gorm:"uniqueIndex:idx_ref_once"`
	PackageId      uint            `json:"package_id"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:numeric"`
	Percentage     int64           `json:"percentage"`
}

type LevelStat struct {
	Count int64           `json:"count"`
	Bonus decimal.Decimal `json:"bonus"`
}

// RefData aggregates a sponsor's referral earnings per level (2-5).
type RefData struct {
	TotalCounter int64              `json:"total_counter"`
	Total        decimal.Decimal    `json:"total"`
	Levels       map[uint]LevelStat `json:"levels"`
}
