package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"ojomine/internal/ojomine"
)

// Store owns the (balance, transaction log) pair per account. Every mutation
// applies the balance change and the log insert in one unit of work, and the
// balance write is a single conditional UPDATE so concurrent operations on
// the same account serialize at the database.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Entry describes one money movement. Amount is always positive; Credit and
// Debit decide the sign of the recorded transaction.
type Entry struct {
	UserId      uint
	Type        string
	Amount      decimal.Decimal
	Description string
	ReferenceId uint
}

// inScope joins the caller's unit of work when one is passed, otherwise
// opens and owns its own. Nested ledger calls must always pass the outer
// scope; the store never inspects driver state to guess.
func (s *Store) inScope(scope *gorm.DB, fn func(tx *gorm.DB) error) error {
	if scope != nil {
		return fn(scope)
	}
	return s.db.Transaction(fn)
}

// Credit adds funds to an account and appends the transaction record.
// Withdrawable-flagged types raise the cash-out eligible column in the same
// write.
func (s *Store) Credit(scope *gorm.DB, e Entry) (txid uint, err error) {
	if e.Amount.Sign() <= 0 {
		return 0, ojomine.ErrInvalidAmount
	}
	err = s.inScope(scope, func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"balance":    gorm.Expr("balance + ?", e.Amount),
			"updated_at": time.Now(),
		}
		if ojomine.WithdrawableForType(e.Type) {
			updates["withdrawable"] = gorm.Expr("withdrawable + ?", e.Amount)
		}
		res := tx.Model(&ojomine.Ewallet{}).
			Where("user_id = ?", e.UserId).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ojomine.ErrWalletNotFound
		}
		txid, err = s.appendTransaction(tx, e, e.Amount)
		return err
	})
	if err != nil {
		return 0, err
	}
	return txid, nil
}

// Debit removes funds from an account. The non-negative constraint is part
// of the UPDATE itself; a debit that would drive the balance negative fails
// with ErrInsufficientFunds and performs no mutation. Debits of
// withdrawable-flagged types (withdrawals) additionally require the
// withdrawable column to cover the amount, in the same guarded write, so
// two concurrent reservations can never both pass the check.
func (s *Store) Debit(scope *gorm.DB, e Entry) (txid uint, err error) {
	if e.Amount.Sign() <= 0 {
		return 0, ojomine.ErrInvalidAmount
	}
	err = s.inScope(scope, func(tx *gorm.DB) error {
		cond := tx.Model(&ojomine.Ewallet{}).
			Where("user_id = ? AND balance >= ?", e.UserId, e.Amount)
		updates := map[string]interface{}{
			"balance":    gorm.Expr("balance - ?", e.Amount),
			"updated_at": time.Now(),
		}
		if ojomine.WithdrawableForType(e.Type) {
			cond = cond.Where("withdrawable >= ?", e.Amount)
			updates["withdrawable"] = gorm.Expr("withdrawable - ?", e.Amount)
		}
		res := cond.Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&ojomine.Ewallet{}).Where("user_id = ?", e.UserId).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ojomine.ErrWalletNotFound
			}
			return ojomine.ErrInsufficientFunds
		}
		txid, err = s.appendTransaction(tx, e, e.Amount.Neg())
		return err
	})
	if err != nil {
		return 0, err
	}
	return txid, nil
}

func (s *Store) appendTransaction(tx *gorm.DB, e Entry, signed decimal.Decimal) (uint, error) {
	txn := ojomine.EwalletTransaction{
		UserId:         e.UserId,
		Type:           e.Type,
		Status:         ojomine.StatusForType(e.Type),
		Amount:         signed,
		Description:    e.Description,
		ReferenceId:    e.ReferenceId,
		IsWithdrawable: ojomine.WithdrawableForType(e.Type),
	}
	if err := tx.Create(&txn).Error; err != nil {
		return 0, err
	}
	return txn.Txid, nil
}

// ResolvePending flips the pending transaction linked to a request to its
// final status. Flipping never changes a balance; compensation is always an
// explicit refund entry.
func (s *Store) ResolvePending(scope *gorm.DB, referenceId uint, txType string, status string) error {
	if status != ojomine.StatusCompleted && status != ojomine.StatusFailed {
		return ojomine.ErrInvalidState
	}
	return s.inScope(scope, func(tx *gorm.DB) error {
		res := tx.Model(&ojomine.EwalletTransaction{}).
			Where("reference_id = ? AND type = ? AND status = ?",
				referenceId, txType, ojomine.StatusPending).
			Update("status", status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ojomine.ErrNotFound
		}
		return nil
	})
}

func (s *Store) Balance(userId uint) (decimal.Decimal, error) {
	var wallet ojomine.Ewallet
	res := s.db.Where("user_id = ?", userId).First(&wallet)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return decimal.Zero, ojomine.ErrWalletNotFound
		}
		return decimal.Zero, res.Error
	}
	return wallet.Balance, nil
}

// WithdrawableBalance reports the cash-out eligible part of the account.
// The overall balance still caps any debit, so this is a ceiling, not a
// second spendable balance.
func (s *Store) WithdrawableBalance(userId uint) (decimal.Decimal, error) {
	var wallet ojomine.Ewallet
	res := s.db.Where("user_id = ?", userId).First(&wallet)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return decimal.Zero, ojomine.ErrWalletNotFound
		}
		return decimal.Zero, res.Error
	}
	return wallet.Withdrawable, nil
}

// History returns the account's transaction log, newest first.
func (s *Store) History(userId uint, limit int, offset int) ([]ojomine.EwalletTransaction, error) {
	if limit <= 0 {
		limit = 20
	}
	var txns []ojomine.EwalletTransaction
	err := s.db.Where("user_id = ?", userId).
		Order("created_at DESC, txid DESC").
		Limit(limit).Offset(offset).
		Find(&txns).Error
	return txns, err
}

// Transfer moves funds between members inside one unit of work: the sender
// is debited the full amount, the recipient receives the amount minus the
// configured charge, and the charge is credited to the admin account as
// withdrawable income. Transferred funds are not withdrawable for the
// recipient.
func (s *Store) Transfer(fromId uint, toId uint, amount decimal.Decimal, cfg *ojomine.AppConfig) error {
	if fromId == toId {
		return ojomine.ErrInvalidState
	}
	if amount.LessThan(decimal.NewFromFloat(cfg.Settings.Transfer.Min)) {
		return ojomine.ErrInvalidAmount
	}
	if amount.GreaterThan(decimal.NewFromFloat(cfg.Settings.Transfer.Max)) {
		return ojomine.ErrInvalidAmount
	}

	charge := amount.Mul(decimal.NewFromInt(cfg.Settings.Transfer.ChargePercentage)).
		Div(decimal.NewFromInt(100))
	net := amount.Sub(charge)

	return s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.Debit(tx, Entry{
			UserId:      fromId,
			Type:        ojomine.TxTransfer,
			Amount:      amount,
			Description: fmt.Sprintf("Transfer to user ID: %d", toId),
			ReferenceId: toId,
		}); err != nil {
			return err
		}
		if _, err := s.Credit(tx, Entry{
			UserId:      toId,
			Type:        ojomine.TxTransfer,
			Amount:      net,
			Description: fmt.Sprintf("Received transfer from user ID: %d", fromId),
			ReferenceId: fromId,
		}); err != nil {
			return err
		}
		if charge.Sign() > 0 && cfg.Settings.Transfer.AdminUserId > 0 {
			if _, err := s.Credit(tx, Entry{
				UserId:      cfg.Settings.Transfer.AdminUserId,
				Type:        ojomine.TxTransferCharge,
				Amount:      charge,
				Description: fmt.Sprintf("Transfer charge from user ID: %d", fromId),
				ReferenceId: fromId,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}
