package ojomine

import (
	"errors"
	"time"

	"github.com/dchest/uniuri"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	RoleMember = "member"
	RoleAdmin  = "admin"

	UserActive   = "active"
	UserInactive = "inactive"
)

type User struct {
	Id         uint           `json:"id" gorm:"primarykey"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"deleted_at" gorm:"index"`
	Username   string         `gorm:"uniqueIndex;not null" json:"username"`
	Email      string         `json:"email"`
	Role       string         `gorm:"not null;default:member" json:"role"`
	Status     string         `gorm:"not null;default:active" json:"status"`
	SponsorId  uint           `gorm:"index" json:"sponsor_id"` // 0 = no sponsor
	RefCode    string         `gorm:"index" json:"ref_code"`
	RefCounter uint           `json:"ref_counter"` // direct referrals
}

type UserData struct {
	ID           uint            `json:"id"`
	Username     string          `json:"username"`
	Balance      decimal.Decimal `json:"balance"`      // up-to-date e-wallet balance
	Withdrawable decimal.Decimal `json:"withdrawable"` // cash-out eligible part
	RefCode      string          `json:"ref_code"`
	RefCounter   uint            `json:"ref_counter"`
}

type Registration struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	SponsorUsername string `json:"sponsor_username"` // username or referral code, optional
}

// RegisterUser creates a member and its zero-balance e-wallet in one unit of
// work. Sponsor resolution falls back to the default admin account when the
// orphan-prevention settings allow it.
func RegisterUser(db *gorm.DB, cfg *AppConfig, reg Registration) (*User, error) {
	if len(reg.Username) < 3 || len(reg.Username) > 50 {
		return nil, ErrInvalidState
	}

	sponsorId, err := resolveSponsor(db, cfg, reg.SponsorUsername)
	if err != nil {
		return nil, err
	}

	user := &User{
		Username:  reg.Username,
		Email:     reg.Email,
		Role:      RoleMember,
		Status:    UserActive,
		SponsorId: sponsorId,
		RefCode:   uniuri.NewLen(8),
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		wallet := Ewallet{UserId: user.Id, Balance: decimal.Zero}
		if err := tx.Create(&wallet).Error; err != nil {
			return err
		}
		if sponsorId > 0 {
			res := tx.Model(&User{}).Where("id = ?", sponsorId).
				Update("ref_counter", gorm.Expr("ref_counter + 1"))
			if res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func resolveSponsor(db *gorm.DB, cfg *AppConfig, sponsorUsername string) (uint, error) {
	if sponsorUsername != "" {
		var sponsor User
		res := db.Where("(username = ? OR ref_code = ?) AND status = ?",
			sponsorUsername, sponsorUsername, UserActive).First(&sponsor)
		if res.Error == nil {
			return sponsor.Id, nil
		}
		if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return 0, res.Error
		}
		if cfg.Settings.Sponsor.DefaultSponsorEnabled {
			return DefaultSponsorId(db)
		}
		return 0, ErrNotFound
	}
	if cfg.Settings.Sponsor.OrphanPrevention {
		return DefaultSponsorId(db)
	}
	return 0, nil
}

// DefaultSponsorId returns the first active administrator account, used as
// the fallback sponsor for orphan registrations.
func DefaultSponsorId(db *gorm.DB) (uint, error) {
	var admin User
	res := db.Where("role = ? AND status = ?", RoleAdmin, UserActive).
		Order("id ASC").First(&admin)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, res.Error
	}
	return admin.Id, nil
}
