package lifecycle

import (
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ojomine/internal/commission"
	"ojomine/internal/ledger"
	"ojomine/internal/ojomine"
)

type fixture struct {
	db      *gorm.DB
	store   *ledger.Store
	manager *Manager
	cfg     *ojomine.AppConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// Every pooled connection to :memory: would get its own database.
	sqlDb, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDb.SetMaxOpenConns(1)
	if err := db.AutoMigrate(ojomine.Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := ojomine.DefaultAppConfig()
	configFn := func() *ojomine.AppConfig { return cfg }
	store := ledger.NewStore(db)
	engine := commission.NewEngine(db, store, configFn)
	return &fixture{
		db:      db,
		store:   store,
		manager: NewManager(db, store, engine, nil, configFn),
		cfg:     cfg,
	}
}

func (f *fixture) seedUser(t *testing.T, username string, balance float64, sponsorId uint) *ojomine.User {
	t.Helper()
	user := &ojomine.User{
		Username:  username,
		Role:      ojomine.RoleMember,
		Status:    ojomine.UserActive,
		SponsorId: sponsorId,
	}
	if err := f.db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	wallet := &ojomine.Ewallet{UserId: user.Id, Balance: decimal.NewFromFloat(balance)}
	if err := f.db.Create(wallet).Error; err != nil {
		t.Fatalf("seed wallet: %v", err)
	}
	return user
}

func (f *fixture) seedOffering(t *testing.T, name string, price int64) *ojomine.Package {
	t.Helper()
	pkg := &ojomine.Package{Name: name, Price: decimal.NewFromInt(price), Status: ojomine.PackageOfferActive}
	if err := f.db.Create(pkg).Error; err != nil {
		t.Fatalf("seed offering: %v", err)
	}
	return pkg
}

func (f *fixture) balance(t *testing.T, userId uint) decimal.Decimal {
	t.Helper()
	balance, err := f.store.Balance(userId)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func (f *fixture) reload(t *testing.T, id uint) *ojomine.UserPackage {
	t.Helper()
	var up ojomine.UserPackage
	if err := f.db.First(&up, "id = ?", id).Error; err != nil {
		t.Fatalf("reload package: %v", err)
	}
	return &up
}

func TestPurchase(t *testing.T) {
	f := newFixture(t)
	buyer := f.seedUser(t, "buyer", 150, 0)
	offering := f.seedOffering(t, "Starter", 100)

	up, err := f.manager.Purchase(buyer.Id, offering.Id)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if got := f.balance(t, buyer.Id); !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("balance = %s, want 50", got)
	}
	if up.CurrentCycle != 1 || up.TotalCycles != 3 || up.Status != ojomine.PackageActive {
		t.Fatalf("unexpected package state: %+v", up)
	}
	if !up.Price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("snapshot price = %s, want 100", up.Price)
	}

	var txn ojomine.EwalletTransaction
	if err := f.db.First(&txn, "user_id = ? AND type = ?", buyer.Id, ojomine.TxPurchase).Error; err != nil {
		t.Fatalf("load purchase txn: %v", err)
	}
	if txn.IsWithdrawable {
		t.Fatal("purchase debit must not be withdrawable")
	}
	if txn.ReferenceId != up.Id {
		t.Fatalf("reference = %d, want %d", txn.ReferenceId, up.Id)
	}
}

func TestPurchaseInsufficientFundsCreatesNothing(t *testing.T) {
	f := newFixture(t)
	buyer := f.seedUser(t, "buyer", 10, 0)
	offering := f.seedOffering(t, "Starter", 100)

	_, err := f.manager.Purchase(buyer.Id, offering.Id)
	if !errors.Is(err, ojomine.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	var count int64
	f.db.Model(&ojomine.UserPackage{}).Count(&count)
	if count != 0 {
		t.Fatalf("user packages = %d, want 0", count)
	}
	if got := f.balance(t, buyer.Id); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("balance = %s, want 10", got)
	}
}

func TestPurchaseInactiveOffering(t *testing.T) {
	f := newFixture(t)
	buyer := f.seedUser(t, "buyer", 500, 0)
	offering := f.seedOffering(t, "Retired", 100)
	f.db.Model(offering).Update("status", ojomine.PackageOfferInactive)

	if _, err := f.manager.Purchase(buyer.Id, offering.Id); !errors.Is(err, ojomine.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// The A<-B<-C<-D chain: D's purchase pays C 10%, B 1%, A 1%.
func TestPurchasePaysCommissionsInline(t *testing.T) {
	f := newFixture(t)
	a := f.seedUser(t, "a", 0, 0)
	b := f.seedUser(t, "b", 0, a.Id)
	c := f.seedUser(t, "c", 0, b.Id)
	d := f.seedUser(t, "d", 100, c.Id)
	offering := f.seedOffering(t, "Starter", 100)

	if _, err := f.manager.Purchase(d.Id, offering.Id); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if got := f.balance(t, d.Id); !got.IsZero() {
		t.Fatalf("buyer balance = %s, want 0", got)
	}
	if got := f.balance(t, c.Id); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("C balance = %s, want 10", got)
	}
	if got := f.balance(t, b.Id); !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("B balance = %s, want 1", got)
	}
	if got := f.balance(t, a.Id); !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("A balance = %s, want 1", got)
	}
}

// Three accruals at 50% of a $100 package: three $50 records, package
// completed at cycle 4, withdrawable up by $150.
func TestAccrueMonthlyBonusFullRun(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "owner", 100, 0)
	offering := f.seedOffering(t, "Starter", 100)
	up, err := f.manager.Purchase(owner.Id, offering.Id)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := f.manager.AccrueMonthlyBonus(up.Id); err != nil {
			t.Fatalf("accrue #%d: %v", i+1, err)
		}
	}

	got := f.reload(t, up.Id)
	if got.Status != ojomine.PackageCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	if got.CurrentCycle != 4 {
		t.Fatalf("cycle = %d, want 4", got.CurrentCycle)
	}

	var records []ojomine.MonthlyBonus
	if err := f.db.Order("cycle_number ASC").Find(&records).Error; err != nil {
		t.Fatalf("load records: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	for _, r := range records {
		if !r.Amount.Equal(decimal.NewFromInt(50)) {
			t.Fatalf("record amount = %s, want 50", r.Amount)
		}
	}

	withdrawable, err := f.store.WithdrawableBalance(owner.Id)
	if err != nil {
		t.Fatalf("withdrawable: %v", err)
	}
	if !withdrawable.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("withdrawable = %s, want 150", withdrawable)
	}

	// A fourth accrual is rejected, the package is done.
	if err := f.manager.AccrueMonthlyBonus(up.Id); !errors.Is(err, ojomine.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

// A pre-existing bonus record suppresses the credit but still advances the
// cycle, healing a half-applied accrual.
func TestAccrueMonthlyBonusIdempotentPerCycle(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "owner", 100, 0)
	offering := f.seedOffering(t, "Starter", 100)
	up, err := f.manager.Purchase(owner.Id, offering.Id)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	record := ojomine.MonthlyBonus{
		UserId:        owner.Id,
		PackageId:     offering.Id,
		UserPackageId: up.Id,
		CycleNumber:   1,
		Amount:        decimal.NewFromInt(50),
	}
	if err := f.db.Create(&record).Error; err != nil {
		t.Fatalf("seed record: %v", err)
	}

	if err := f.manager.AccrueMonthlyBonus(up.Id); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	var count int64
	f.db.Model(&ojomine.EwalletTransaction{}).
		Where("user_id = ? AND type = ?", owner.Id, ojomine.TxBonus).Count(&count)
	if count != 0 {
		t.Fatalf("bonus credits = %d, want 0", count)
	}
	if got := f.reload(t, up.Id); got.CurrentCycle != 2 {
		t.Fatalf("cycle = %d, want 2", got.CurrentCycle)
	}
}

// When a concurrent accrual advances the cycle between the initial read and
// the guarded advance, the whole accrual rolls back and the caller sees the
// work as already done, not as a failure.
func TestAccrueMonthlyBonusLostAdvanceRace(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "owner", 100, 0)
	offering := f.seedOffering(t, "Starter", 100)
	up, err := f.manager.Purchase(owner.Id, offering.Id)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	// Advance the cycle out from under the accrual right after its bonus
	// record insert, standing in for a concurrent run committing first.
	raced := false
	err = f.db.Callback().Create().After("gorm:create").Register("concurrent_accrual", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "monthly_bonuses" {
			return
		}
		raced = true
		tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE user_packages SET current_cycle = current_cycle + 1 WHERE id = ?", up.Id)
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	if err := f.manager.AccrueMonthlyBonus(up.Id); !errors.Is(err, ojomine.ErrAlreadyProcessed) {
		t.Fatalf("err = %v, want ErrAlreadyProcessed", err)
	}

	// The losing accrual left nothing behind.
	var credits int64
	f.db.Model(&ojomine.EwalletTransaction{}).
		Where("user_id = ? AND type = ?", owner.Id, ojomine.TxBonus).Count(&credits)
	if credits != 0 {
		t.Fatalf("bonus credits = %d, want 0", credits)
	}
}

func completePackage(t *testing.T, f *fixture, upId uint) {
	t.Helper()
	for i := 0; i < 3; i++ {
		if err := f.manager.AccrueMonthlyBonus(upId); err != nil {
			t.Fatalf("accrue #%d: %v", i+1, err)
		}
	}
}

func TestWithdrawCompletedPackage(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "owner", 100, 0)
	offering := f.seedOffering(t, "Starter", 100)
	up, err := f.manager.Purchase(owner.Id, offering.Id)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	completePackage(t, f, up.Id)

	if err := f.manager.WithdrawOrRemine(owner.Id, up.Id, ActionWithdraw); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	if got := f.reload(t, up.Id); got.Status != ojomine.PackageWithdrawn {
		t.Fatalf("status = %q, want withdrawn", got.Status)
	}
	// 0 after purchase, +150 bonuses, +100 principal back.
	if got := f.balance(t, owner.Id); !got.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("balance = %s, want 250", got)
	}

	// The terminal action happens once.
	if err := f.manager.WithdrawOrRemine(owner.Id, up.Id, ActionWithdraw); !errors.Is(err, ojomine.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestReminePackage(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "owner", 100, 0)
	offering := f.seedOffering(t, "Starter", 100)
	up, err := f.manager.Purchase(owner.Id, offering.Id)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	completePackage(t, f, up.Id)

	if err := f.manager.WithdrawOrRemine(owner.Id, up.Id, ActionRemine); err != nil {
		t.Fatalf("remine: %v", err)
	}

	got := f.reload(t, up.Id)
	if got.Status != ojomine.PackageActive {
		t.Fatalf("status = %q, want active", got.Status)
	}
	if got.CurrentCycle != 1 {
		t.Fatalf("cycle = %d, want 1", got.CurrentCycle)
	}
	// +150 in bonuses, -100 remine debit.
	if got := f.balance(t, owner.Id); !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("balance = %s, want 50", got)
	}
}

func TestRemineInsufficientFundsLeavesPackageCompleted(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "owner", 100, 0)
	offering := f.seedOffering(t, "Starter", 100)
	up, err := f.manager.Purchase(owner.Id, offering.Id)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	completePackage(t, f, up.Id)

	// Drain the bonuses so the remine debit cannot be covered.
	if _, err := f.store.Debit(nil, ledger.Entry{
		UserId: owner.Id,
		Type:   ojomine.TxPurchase,
		Amount: decimal.NewFromInt(150),
	}); err != nil {
		t.Fatalf("drain: %v", err)
	}

	err = f.manager.WithdrawOrRemine(owner.Id, up.Id, ActionRemine)
	if !errors.Is(err, ojomine.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	got := f.reload(t, up.Id)
	if got.Status != ojomine.PackageCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	if got.CurrentCycle != 4 {
		t.Fatalf("cycle = %d, want 4", got.CurrentCycle)
	}
}

func TestWithdrawRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "owner", 100, 0)
	other := f.seedUser(t, "other", 0, 0)
	offering := f.seedOffering(t, "Starter", 100)
	up, err := f.manager.Purchase(owner.Id, offering.Id)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	completePackage(t, f, up.Id)

	if err := f.manager.WithdrawOrRemine(other.Id, up.Id, ActionWithdraw); !errors.Is(err, ojomine.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestWithdrawActivePackageRejected(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "owner", 100, 0)
	offering := f.seedOffering(t, "Starter", 100)
	up, err := f.manager.Purchase(owner.Id, offering.Id)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if err := f.manager.WithdrawOrRemine(owner.Id, up.Id, ActionWithdraw); !errors.Is(err, ojomine.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if err := f.manager.WithdrawOrRemine(owner.Id, up.Id, "explode"); !errors.Is(err, ojomine.ErrInvalidState) {
		t.Fatalf("bad action: err = %v, want ErrInvalidState", err)
	}
}
