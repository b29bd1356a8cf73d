package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"ojomine/internal/commission"
	"ojomine/internal/ojomine"
)

// HandleCommissionTask pays the referral commissions for one purchase. The
// per-level records make retries harmless, so transient failures are simply
// re-delivered by asynq.
func HandleCommissionTask(engine *commission.Engine) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p ojomine.CommissionPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("commission payload: %v: %w", err, asynq.SkipRetry)
		}
		err := engine.PayCommissions(p.BuyerId, p.Amount, p.UserPackageId, p.PackageId)
		if errors.Is(err, ojomine.ErrSponsorCycle) || errors.Is(err, ojomine.ErrNotFound) {
			// Data problems, retrying cannot fix them.
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
}

// HandleMonthlyBatchTask runs the monthly bonus sweep.
func HandleMonthlyBatchTask(p *Processor) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		_, err := p.Run(ctx)
		return err
	}
}
