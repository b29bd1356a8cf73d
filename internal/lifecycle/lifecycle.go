package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ojomine/internal/commission"
	"ojomine/internal/ledger"
	"ojomine/internal/logging"
	"ojomine/internal/ojomine"
)

// Terminal actions on a completed package.
const (
	ActionWithdraw = "withdraw"
	ActionRemine   = "remine"
)

// Manager owns the purchased-package state machine: purchase, monthly bonus
// accrual through the cycle count, completion, and the withdraw-or-remine
// terminal actions.
type Manager struct {
	db     *gorm.DB
	store  *ledger.Store
	engine *commission.Engine
	aqc    *asynq.Client
	config ojomine.ConfigFn
}

// NewManager wires the lifecycle. A nil asynq client makes commission payouts
// run inline instead of being enqueued, which the tests and the batch binary
// rely on.
func NewManager(db *gorm.DB, store *ledger.Store, engine *commission.Engine, aqc *asynq.Client, config ojomine.ConfigFn) *Manager {
	return &Manager{db: db, store: store, engine: engine, aqc: aqc, config: config}
}

// Purchase debits the buyer and creates the owned package in one unit of
// work, then hands commission payment off. A commission failure never rolls
// back the purchase; the payout is retried independently.
func (m *Manager) Purchase(userId uint, packageId uint) (*ojomine.UserPackage, error) {
	cfg := m.config()

	var offering ojomine.Package
	if err := m.db.First(&offering, "id = ? AND status = ?", packageId, ojomine.PackageOfferActive).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ojomine.ErrNotFound
		}
		return nil, err
	}

	now := time.Now()
	up := &ojomine.UserPackage{
		UserId:        userId,
		PackageId:     offering.Id,
		Price:         offering.Price,
		PurchaseDate:  now,
		CurrentCycle:  1,
		TotalCycles:   cfg.Settings.Bonus.Months,
		Status:        ojomine.PackageActive,
		NextBonusDate: now.AddDate(0, 1, 0),
	}
	err := m.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(up).Error; err != nil {
			return err
		}
		_, err := m.store.Debit(tx, ledger.Entry{
			UserId:      userId,
			Type:        ojomine.TxPurchase,
			Amount:      offering.Price,
			Description: fmt.Sprintf("Package purchase: %s", offering.Name),
			ReferenceId: up.Id,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	m.dispatchCommissions(up, offering.Id)
	return up, nil
}

// dispatchCommissions enqueues the payout when a task client is wired,
// otherwise runs it inline. Either way the purchase is already committed.
func (m *Manager) dispatchCommissions(up *ojomine.UserPackage, packageId uint) {
	if m.aqc != nil {
		task, err := ojomine.NewCommissionTask(ojomine.CommissionPayload{
			BuyerId:       up.UserId,
			Amount:        up.Price,
			UserPackageId: up.Id,
			PackageId:     packageId,
		})
		if err == nil {
			if _, err = m.aqc.Enqueue(task); err == nil {
				return
			}
		}
		logging.Logger.Error(fmt.Sprintf("enqueue commission payout for purchase %d: %v", up.Id, err))
		// Fall through to the inline path rather than losing the payout.
	}
	if err := m.engine.PayCommissions(up.UserId, up.Price, up.Id, packageId); err != nil {
		logging.Logger.Error(fmt.Sprintf("commission payout for purchase %d: %v", up.Id, err))
	}
}

// AccrueMonthlyBonus pays one cycle's bonus for an active package. The
// monthly bonus record insert gates the credit, so re-running for the same
// cycle is a no-op. When the advanced cycle exceeds the total the package
// flips to completed.
func (m *Manager) AccrueMonthlyBonus(userPackageId uint) error {
	cfg := m.config()

	var up ojomine.UserPackage
	if err := m.db.First(&up, "id = ?", userPackageId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ojomine.ErrNotFound
		}
		return err
	}
	if up.Status != ojomine.PackageActive || up.CurrentCycle > up.TotalCycles {
		return ojomine.ErrInvalidState
	}

	bonus := up.Price.Mul(decimal.NewFromInt(cfg.Settings.Bonus.MonthlyPercentage)).
		Div(decimal.NewFromInt(100))

	return m.db.Transaction(func(tx *gorm.DB) error {
		record := ojomine.MonthlyBonus{
			UserId:        up.UserId,
			PackageId:     up.PackageId,
			UserPackageId: up.Id,
			CycleNumber:   up.CurrentCycle,
			Amount:        bonus,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			var name string
			tx.Model(&ojomine.Package{}).Where("id = ?", up.PackageId).
				Select("name").Row().Scan(&name)
			if _, err := m.store.Credit(tx, ledger.Entry{
				UserId:      up.UserId,
				Type:        ojomine.TxBonus,
				Amount:      bonus,
				Description: fmt.Sprintf("Monthly bonus for %s - Cycle %d", name, up.CurrentCycle),
				ReferenceId: up.Id,
			}); err != nil {
				return err
			}
		}
		// When the record already existed the credit is skipped, but the
		// cycle still advances so a crash between the two writes heals on
		// the next run.

		// The cycle guard makes concurrent accruals for the same package
		// advance at most once.
		advance := tx.Model(&ojomine.UserPackage{}).
			Where("id = ? AND status = ? AND current_cycle = ?",
				up.Id, ojomine.PackageActive, up.CurrentCycle).
			Updates(map[string]interface{}{
				"current_cycle":   gorm.Expr("current_cycle + 1"),
				"next_bonus_date": up.NextBonusDate.AddDate(0, 1, 0),
				"status": gorm.Expr("CASE WHEN current_cycle >= total_cycles THEN ? ELSE status END",
					ojomine.PackageCompleted),
			})
		if advance.Error != nil {
			return advance.Error
		}
		if advance.RowsAffected == 0 {
			// A concurrent accrual already moved the cycle; the work is done.
			return ojomine.ErrAlreadyProcessed
		}
		return nil
	})
}

// WithdrawOrRemine applies a terminal action to a completed package.
// Withdraw returns the snapshotted price to the owner; remine debits the
// price again and restarts the same package at cycle 1. An insufficient
// remine debit leaves the package completed and untouched.
func (m *Manager) WithdrawOrRemine(userId uint, userPackageId uint, action string) error {
	if action != ActionWithdraw && action != ActionRemine {
		return ojomine.ErrInvalidState
	}

	var up ojomine.UserPackage
	if err := m.db.First(&up, "id = ? AND user_id = ?", userPackageId, userId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ojomine.ErrNotFound
		}
		return err
	}

	var name string
	m.db.Model(&ojomine.Package{}).Where("id = ?", up.PackageId).
		Select("name").Row().Scan(&name)

	return m.db.Transaction(func(tx *gorm.DB) error {
		claim := tx.Model(&ojomine.UserPackage{}).
			Where("id = ? AND user_id = ? AND status = ? AND current_cycle > total_cycles",
				userPackageId, userId, ojomine.PackageCompleted)
		if action == ActionWithdraw {
			claim = claim.Update("status", ojomine.PackageWithdrawn)
		} else {
			claim = claim.Updates(map[string]interface{}{
				"status":          ojomine.PackageActive,
				"current_cycle":   1,
				"next_bonus_date": time.Now().AddDate(0, 1, 0),
			})
		}
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			// Someone else resolved it first, or it never completed.
			return ojomine.ErrInvalidState
		}

		var err error
		if action == ActionWithdraw {
			_, err = m.store.Credit(tx, ledger.Entry{
				UserId:      userId,
				Type:        ojomine.TxRefund,
				Amount:      up.Price,
				Description: fmt.Sprintf("Withdraw completed package: %s", name),
				ReferenceId: up.Id,
			})
		} else {
			_, err = m.store.Debit(tx, ledger.Entry{
				UserId:      userId,
				Type:        ojomine.TxPurchase,
				Amount:      up.Price,
				Description: fmt.Sprintf("Remine package: %s", name),
				ReferenceId: up.Id,
			})
		}
		return err
	})
}
