package ojomine

import (
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

// Task types routed through asynq. Commission payouts run on the
// "commissions" queue, the monthly bonus batch on "bonuses".
const (
	TaskCommissionPay = "commission:pay"
	TaskMonthlyBatch  = "bonus:monthly_batch"

	QueueCommissions = "commissions"
	QueueBonuses     = "bonuses"
)

type CommissionPayload struct {
	BuyerId       uint            `json:"buyer_id"`
	Amount        decimal.Decimal `json:"amount"`
	UserPackageId uint            `json:"user_package_id"`
	PackageId     uint            `json:"package_id"`
}

func NewCommissionTask(p CommissionPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCommissionPay, payload, asynq.Queue(QueueCommissions)), nil
}

func NewMonthlyBatchTask() *asynq.Task {
	return asynq.NewTask(TaskMonthlyBatch, nil, asynq.Queue(QueueBonuses))
}
