package ojomine

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DashboardStats struct {
	User           UserData        `json:"user"`
	ActivePackages int64           `json:"active_packages"`
	BonusTotal     decimal.Decimal `json:"bonus_total"`
	ReferralStats  RefData         `json:"referral_stats"`
}

// BuildDashboardStats assembles the member dashboard snapshot: balances,
// active package count, lifetime bonus and per-level referral earnings.
func BuildDashboardStats(db *gorm.DB, user User) (*DashboardStats, error) {
	stats := &DashboardStats{
		User: UserData{
			ID:         user.Id,
			Username:   user.Username,
			RefCode:    user.RefCode,
			RefCounter: user.RefCounter,
		},
	}

	var wallet Ewallet
	if err := db.Where("user_id = ?", user.Id).First(&wallet).Error; err != nil {
		return nil, err
	}
	stats.User.Balance = wallet.Balance
	stats.User.Withdrawable = wallet.Withdrawable

	if err := db.Model(&UserPackage{}).
		Where("user_id = ? AND status = ?", user.Id, PackageActive).
		Count(&stats.ActivePackages).Error; err != nil {
		return nil, err
	}

	row := db.Model(&MonthlyBonus{}).Where("user_id = ?", user.Id).
		Select("COALESCE(SUM(amount), 0)").Row()
	if err := row.Scan(&stats.BonusTotal); err != nil {
		return nil, err
	}

	refData, err := BuildRefData(db, user.Id)
	if err != nil {
		return nil, err
	}
	stats.ReferralStats = *refData
	return stats, nil
}

// BuildRefData aggregates referral bonus records per level for a sponsor.
func BuildRefData(db *gorm.DB, userId uint) (*RefData, error) {
	data := &RefData{
		Total:  decimal.Zero,
		Levels: map[uint]LevelStat{},
	}
	rows, err := db.Model(&ReferralBonus{}).
		Where("user_id = ?", userId).
		Select("level, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS bonus").
		Group("level").Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var level uint
		var stat LevelStat
		if err := rows.Scan(&level, &stat.Count, &stat.Bonus); err != nil {
			return nil, err
		}
		data.Levels[level] = stat
		data.TotalCounter += stat.Count
		data.Total = data.Total.Add(stat.Bonus)
	}
	return data, rows.Err()
}
