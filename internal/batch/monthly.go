package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"ojomine/internal/logging"
	"ojomine/internal/ojomine"
	"ojomine/internal/worker"
)

// Accruer pays one package's current cycle. Satisfied by lifecycle.Manager.
type Accruer interface {
	AccrueMonthlyBonus(userPackageId uint) error
}

// Processor drives the monthly bonus run. It only selects packages that are
// due and still unpaid for their current cycle, so arbitrary re-invocation
// is safe; the accrual itself re-checks under its own unit of work.
type Processor struct {
	db      *gorm.DB
	manager Accruer

	// Concurrency bounds the worker pool; zero means serial.
	Concurrency int
}

func NewProcessor(db *gorm.DB, manager Accruer) *Processor {
	return &Processor{db: db, manager: manager, Concurrency: 4}
}

type Result struct {
	Scanned int
	Paid    int
	Skipped int
	Failed  int
}

// Run scans for due packages and accrues each in isolation: one failing
// package is logged and counted, never fatal to the rest of the batch.
func (p *Processor) Run(ctx context.Context) (Result, error) {
	var due []uint
	err := p.db.Model(&ojomine.UserPackage{}).
		Where("status = ? AND current_cycle <= total_cycles AND next_bonus_date <= ?",
			ojomine.PackageActive, time.Now()).
		Where("NOT EXISTS (SELECT 1 FROM monthly_bonuses mb WHERE mb.user_package_id = user_packages.id AND mb.cycle_number = user_packages.current_cycle)").
		Order("id ASC").
		Pluck("id", &due).Error
	if err != nil {
		return Result{}, err
	}

	result := Result{Scanned: len(due)}
	if len(due) == 0 {
		return result, nil
	}

	size := p.Concurrency
	if size < 1 {
		size = 1
	}
	pool := worker.NewPool(size, len(due))

	var mu sync.Mutex
	for _, id := range due {
		if ctx.Err() != nil {
			break
		}
		upId := id
		pool.Exec(func() {
			err := p.manager.AccrueMonthlyBonus(upId)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Paid++
			case errors.Is(err, ojomine.ErrAlreadyProcessed):
				// Someone else paid this cycle between the scan and now.
				result.Skipped++
			default:
				result.Failed++
				logging.Logger.Error(fmt.Sprintf("monthly bonus for package %d: %v", upId, err))
			}
		})
	}
	pool.Close()
	pool.Wait()

	logging.Logger.Info(fmt.Sprintf("monthly bonus batch: scanned %d, paid %d, skipped %d, failed %d",
		result.Scanned, result.Paid, result.Skipped, result.Failed))
	return result, ctx.Err()
}
