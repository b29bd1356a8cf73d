package commission

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ojomine/internal/ledger"
	"ojomine/internal/logging"
	"ojomine/internal/ojomine"
)

// Engine pays multi-level referral commissions for package purchases. The
// buyer sits at level 1 and earns nothing; the direct sponsor is level 2 and
// the walk stops at level 5 or at the first account without a sponsor.
const maxLevel = 5

type Engine struct {
	db     *gorm.DB
	store  *ledger.Store
	config ojomine.ConfigFn
}

func NewEngine(db *gorm.DB, store *ledger.Store, config ojomine.ConfigFn) *Engine {
	return &Engine{db: db, store: store, config: config}
}

// PayCommissions walks the buyer's sponsor chain and credits each eligible
// ancestor its configured percentage of the purchase amount. Each level is
// paid in its own unit of work gated by the referral bonus record, so a
// retried payout resumes where it stopped without paying anyone twice.
func (e *Engine) PayCommissions(buyerId uint, amount decimal.Decimal, userPackageId uint, packageId uint) error {
	cfg := e.config()

	var buyer ojomine.User
	if err := e.db.First(&buyer, "id = ?", buyerId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ojomine.ErrNotFound
		}
		return err
	}

	visited := map[uint]bool{buyer.Id: true}
	sponsorId := buyer.SponsorId

	for level := uint(2); level <= maxLevel && sponsorId != 0; level++ {
		if visited[sponsorId] {
			logging.Logger.Warn(fmt.Sprintf("sponsor cycle detected at user ID: %d, stopping payout for purchase %d", sponsorId, userPackageId))
			return ojomine.ErrSponsorCycle
		}
		visited[sponsorId] = true

		var sponsor ojomine.User
		if err := e.db.First(&sponsor, "id = ?", sponsorId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		percent := cfg.Settings.Ref.LevelPercent(level)
		if percent > 0 {
			bonus := amount.Mul(decimal.NewFromInt(percent)).Div(decimal.NewFromInt(100))
			if err := e.payLevel(sponsor.Id, buyerId, level, percent, bonus, userPackageId, packageId); err != nil {
				return err
			}
		}

		sponsorId = sponsor.SponsorId
	}
	return nil
}

func (e *Engine) payLevel(sponsorId uint, buyerId uint, level uint, percent int64, bonus decimal.Decimal, userPackageId uint, packageId uint) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		record := ojomine.ReferralBonus{
			UserId:         sponsorId,
			ReferredUserId: buyerId,
			Level:          level,
			UserPackageId:  userPackageId,
			PackageId:      packageId,
			Amount:         bonus,
			Percentage:     percent,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already paid for this purchase and level.
			return nil
		}
		_, err := e.store.Credit(tx, ledger.Entry{
			UserId:      sponsorId,
			Type:        ojomine.TxReferral,
			Amount:      bonus,
			Description: fmt.Sprintf("Level %d referral bonus from user ID: %d", level, buyerId),
			ReferenceId: userPackageId,
		})
		return err
	})
}
