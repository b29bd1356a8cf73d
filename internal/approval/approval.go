package approval

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"ojomine/internal/ledger"
	"ojomine/internal/logging"
	"ojomine/internal/ojomine"
	"ojomine/internal/telegram"
)

// Workflow manages administrator-mediated withdrawal and refill requests.
// Every request moves pending -> approved or pending -> rejected exactly
// once; the status flip is a conditional update so two administrators
// racing on the same request cannot both win.
type Workflow struct {
	db     *gorm.DB
	store  *ledger.Store
	config ojomine.ConfigFn

	// Notify posts to an operations chat, best effort. Nil disables it.
	Notify func(msg string, chat string) error
}

func NewWorkflow(db *gorm.DB, store *ledger.Store, config ojomine.ConfigFn) *Workflow {
	return &Workflow{
		db:     db,
		store:  store,
		config: config,
		Notify: telegram.Notify,
	}
}

func (w *Workflow) notify(msg string) {
	if w.Notify == nil {
		return
	}
	if err := w.Notify(msg, telegram.ChatFinance); err != nil {
		logging.Logger.Error(fmt.Sprintf("finance notification: %v", err))
	}
}

// CreateWithdrawal reserves the amount immediately: the request row and the
// pending debit commit together, and the debit's own guarded write enforces
// both the balance and the withdrawable ceiling. Funds stay reserved until
// an administrator resolves the request.
func (w *Workflow) CreateWithdrawal(userId uint, amount decimal.Decimal, walletAddress string) (*ojomine.WithdrawalRequest, error) {
	cfg := w.config()
	if amount.LessThan(decimal.NewFromFloat(cfg.Settings.Limits.WithdrawMin)) {
		return nil, ojomine.ErrInvalidAmount
	}
	if cfg.Settings.Limits.WithdrawMax > 0 &&
		amount.GreaterThan(decimal.NewFromFloat(cfg.Settings.Limits.WithdrawMax)) {
		return nil, ojomine.ErrInvalidAmount
	}
	if walletAddress == "" {
		return nil, ojomine.ErrInvalidState
	}

	req := &ojomine.WithdrawalRequest{
		UserId:        userId,
		Amount:        amount,
		WalletAddress: walletAddress,
		Status:        ojomine.RequestPending,
		Reference:     uuid.NewString(),
	}
	err := w.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return err
		}
		_, err := w.store.Debit(tx, ledger.Entry{
			UserId:      userId,
			Type:        ojomine.TxWithdrawal,
			Amount:      amount,
			Description: "Withdrawal request pending approval",
			ReferenceId: req.Id,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	w.notify(fmt.Sprintf("Withdrawal request #%d: user %d, amount %s", req.Id, userId, amount))
	return req, nil
}

// ResolveWithdrawal approves or rejects a pending withdrawal. Approval only
// finalizes the reserved debit; rejection refunds the exact amount and marks
// the reserved transaction failed.
func (w *Workflow) ResolveWithdrawal(requestId uint, approve bool, adminNotes string) error {
	var req ojomine.WithdrawalRequest
	if err := w.db.First(&req, "id = ?", requestId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ojomine.ErrNotFound
		}
		return err
	}

	status := ojomine.RequestApproved
	if !approve {
		status = ojomine.RequestRejected
	}

	err := w.db.Transaction(func(tx *gorm.DB) error {
		if err := w.claimRequest(tx, &ojomine.WithdrawalRequest{}, requestId, status, adminNotes); err != nil {
			return err
		}
		if approve {
			return w.store.ResolvePending(tx, requestId, ojomine.TxWithdrawal, ojomine.StatusCompleted)
		}
		if _, err := w.store.Credit(tx, ledger.Entry{
			UserId:      req.UserId,
			Type:        ojomine.TxWithdrawalRefund,
			Amount:      req.Amount,
			Description: "Withdrawal rejected - refund",
			ReferenceId: req.Id,
		}); err != nil {
			return err
		}
		return w.store.ResolvePending(tx, requestId, ojomine.TxWithdrawal, ojomine.StatusFailed)
	})
	if err != nil {
		return err
	}

	w.notify(fmt.Sprintf("Withdrawal request #%d %s", requestId, status))
	return nil
}

// CreateRefill records a top-up claim with its external proof of payment.
// No funds move until an administrator approves it.
func (w *Workflow) CreateRefill(userId uint, amount decimal.Decimal, transactionHash string) (*ojomine.RefillRequest, error) {
	cfg := w.config()
	if amount.LessThan(decimal.NewFromFloat(cfg.Settings.Limits.RefillMin)) {
		return nil, ojomine.ErrInvalidAmount
	}
	if transactionHash == "" {
		return nil, ojomine.ErrInvalidState
	}

	var count int64
	if err := w.db.Model(&ojomine.Ewallet{}).Where("user_id = ?", userId).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ojomine.ErrWalletNotFound
	}

	req := &ojomine.RefillRequest{
		UserId:          userId,
		Amount:          amount,
		TransactionHash: transactionHash,
		Status:          ojomine.RequestPending,
		Reference:       uuid.NewString(),
	}
	if err := w.db.Create(req).Error; err != nil {
		return nil, err
	}

	w.notify(fmt.Sprintf("Refill request #%d: user %d, amount %s", req.Id, userId, amount))
	return req, nil
}

// ResolveRefill approves or rejects a pending refill. Approval credits the
// deposit and finalizes it in the same unit of work; rejection moves no
// money since none was ever debited.
func (w *Workflow) ResolveRefill(requestId uint, approve bool, adminNotes string) error {
	var req ojomine.RefillRequest
	if err := w.db.First(&req, "id = ?", requestId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ojomine.ErrNotFound
		}
		return err
	}

	status := ojomine.RequestApproved
	if !approve {
		status = ojomine.RequestRejected
	}

	err := w.db.Transaction(func(tx *gorm.DB) error {
		if err := w.claimRequest(tx, &ojomine.RefillRequest{}, requestId, status, adminNotes); err != nil {
			return err
		}
		if !approve {
			return nil
		}
		if _, err := w.store.Credit(tx, ledger.Entry{
			UserId:      req.UserId,
			Type:        ojomine.TxDeposit,
			Amount:      req.Amount,
			Description: "Wallet refill approved",
			ReferenceId: req.Id,
		}); err != nil {
			return err
		}
		// Deposits are born pending; this approval is the resolution.
		return w.store.ResolvePending(tx, requestId, ojomine.TxDeposit, ojomine.StatusCompleted)
	})
	if err != nil {
		return err
	}

	w.notify(fmt.Sprintf("Refill request #%d %s", requestId, status))
	return nil
}

// claimRequest performs the exactly-once status flip. Zero rows affected on
// an existing request means another administrator resolved it first.
func (w *Workflow) claimRequest(tx *gorm.DB, model interface{}, requestId uint, status string, adminNotes string) error {
	now := time.Now()
	res := tx.Model(model).
		Where("id = ? AND status = ?", requestId, ojomine.RequestPending).
		Updates(map[string]interface{}{
			"status":       status,
			"admin_notes":  adminNotes,
			"processed_at": &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ojomine.ErrAlreadyProcessed
	}
	return nil
}
