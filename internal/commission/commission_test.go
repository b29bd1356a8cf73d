package commission

import (
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ojomine/internal/ledger"
	"ojomine/internal/ojomine"
)

func newTestDb(t *testing.T) *gorm.DB {
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
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string, sponsorId uint) *ojomine.User {
	t.Helper()
	user := &ojomine.User{
		Username:  username,
		Role:      ojomine.RoleMember,
		Status:    ojomine.UserActive,
		SponsorId: sponsorId,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	wallet := &ojomine.Ewallet{UserId: user.Id, Balance: decimal.Zero}
	if err := db.Create(&wallet).Error; err != nil {
		t.Fatalf("seed wallet: %v", err)
	}
	return user
}

func staticConfig(cfg *ojomine.AppConfig) ojomine.ConfigFn {
	return func() *ojomine.AppConfig { return cfg }
}

func balanceOf(t *testing.T, store *ledger.Store, userId uint) decimal.Decimal {
	t.Helper()
	balance, err := store.Balance(userId)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

// Four-deep chain, default percentages: the direct sponsor earns 10%, the
// two ancestors above it 1% each.
func TestPayCommissionsChain(t *testing.T) {
	db := newTestDb(t)
	store := ledger.NewStore(db)
	engine := NewEngine(db, store, staticConfig(ojomine.DefaultAppConfig()))

	a := seedUser(t, db, "a", 0)
	b := seedUser(t, db, "b", a.Id)
	c := seedUser(t, db, "c", b.Id)
	d := seedUser(t, db, "d", c.Id)

	if err := engine.PayCommissions(d.Id, decimal.NewFromInt(100), 11, 1); err != nil {
		t.Fatalf("pay: %v", err)
	}

	if got := balanceOf(t, store, c.Id); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("level 2 balance = %s, want 10", got)
	}
	if got := balanceOf(t, store, b.Id); !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("level 3 balance = %s, want 1", got)
	}
	if got := balanceOf(t, store, a.Id); !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("level 4 balance = %s, want 1", got)
	}
	if got := balanceOf(t, store, d.Id); !got.IsZero() {
		t.Fatalf("buyer balance = %s, want 0", got)
	}

	var bonuses []ojomine.ReferralBonus
	if err := db.Order("level ASC").Find(&bonuses).Error; err != nil {
		t.Fatalf("load bonuses: %v", err)
	}
	if len(bonuses) != 3 {
		t.Fatalf("bonus rows = %d, want 3", len(bonuses))
	}
	if bonuses[0].Level != 2 || bonuses[0].UserId != c.Id || bonuses[0].Percentage != 10 {
		t.Fatalf("unexpected level 2 row: %+v", bonuses[0])
	}
}

func TestPayCommissionsIdempotent(t *testing.T) {
	db := newTestDb(t)
	store := ledger.NewStore(db)
	engine := NewEngine(db, store, staticConfig(ojomine.DefaultAppConfig()))

	a := seedUser(t, db, "a", 0)
	b := seedUser(t, db, "b", a.Id)

	for i := 0; i < 3; i++ {
		if err := engine.PayCommissions(b.Id, decimal.NewFromInt(100), 21, 1); err != nil {
			t.Fatalf("pay #%d: %v", i, err)
		}
	}

	if got := balanceOf(t, store, a.Id); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("sponsor balance = %s, want 10", got)
	}
	var count int64
	db.Model(&ojomine.ReferralBonus{}).Count(&count)
	if count != 1 {
		t.Fatalf("bonus rows = %d, want 1", count)
	}
}

// Separate purchases by the same buyer each pay their own commission.
func TestPayCommissionsPerPurchase(t *testing.T) {
	db := newTestDb(t)
	store := ledger.NewStore(db)
	engine := NewEngine(db, store, staticConfig(ojomine.DefaultAppConfig()))

	a := seedUser(t, db, "a", 0)
	b := seedUser(t, db, "b", a.Id)

	if err := engine.PayCommissions(b.Id, decimal.NewFromInt(100), 31, 1); err != nil {
		t.Fatalf("pay first: %v", err)
	}
	if err := engine.PayCommissions(b.Id, decimal.NewFromInt(200), 32, 2); err != nil {
		t.Fatalf("pay second: %v", err)
	}

	if got := balanceOf(t, store, a.Id); !got.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("sponsor balance = %s, want 30", got)
	}
}

func TestPayCommissionsStopsAtLevelFive(t *testing.T) {
	db := newTestDb(t)
	store := ledger.NewStore(db)
	engine := NewEngine(db, store, staticConfig(ojomine.DefaultAppConfig()))

	root := seedUser(t, db, "root", 0)
	prev := root
	var chain []*ojomine.User
	for _, name := range []string{"u1", "u2", "u3", "u4", "u5"} {
		prev = seedUser(t, db, name, prev.Id)
		chain = append(chain, prev)
	}
	buyer := chain[len(chain)-1]

	if err := engine.PayCommissions(buyer.Id, decimal.NewFromInt(100), 41, 1); err != nil {
		t.Fatalf("pay: %v", err)
	}

	// root sits at level 6 from the buyer, one past the cap.
	if got := balanceOf(t, store, root.Id); !got.IsZero() {
		t.Fatalf("root balance = %s, want 0", got)
	}
	if got := balanceOf(t, store, chain[0].Id); !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("level 5 balance = %s, want 1", got)
	}
	if got := balanceOf(t, store, chain[3].Id); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("level 2 balance = %s, want 10", got)
	}
}

func TestPayCommissionsSponsorCycle(t *testing.T) {
	db := newTestDb(t)
	store := ledger.NewStore(db)
	engine := NewEngine(db, store, staticConfig(ojomine.DefaultAppConfig()))

	a := seedUser(t, db, "a", 0)
	b := seedUser(t, db, "b", a.Id)
	if err := db.Model(&ojomine.User{}).Where("id = ?", a.Id).Update("sponsor_id", b.Id).Error; err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	c := seedUser(t, db, "c", b.Id)

	err := engine.PayCommissions(c.Id, decimal.NewFromInt(100), 51, 1)
	if !errors.Is(err, ojomine.ErrSponsorCycle) {
		t.Fatalf("err = %v, want ErrSponsorCycle", err)
	}

	// Levels reached before the cycle was detected stay paid.
	if got := balanceOf(t, store, b.Id); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("level 2 balance = %s, want 10", got)
	}
	if got := balanceOf(t, store, a.Id); !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("level 3 balance = %s, want 1", got)
	}
}

func TestPayCommissionsZeroPercentLevelSkipped(t *testing.T) {
	db := newTestDb(t)
	store := ledger.NewStore(db)

	cfg := ojomine.DefaultAppConfig()
	cfg.Settings.Ref.LvlThree = 0
	engine := NewEngine(db, store, staticConfig(cfg))

	a := seedUser(t, db, "a", 0)
	b := seedUser(t, db, "b", a.Id)
	c := seedUser(t, db, "c", b.Id)
	d := seedUser(t, db, "d", c.Id)

	if err := engine.PayCommissions(d.Id, decimal.NewFromInt(100), 61, 1); err != nil {
		t.Fatalf("pay: %v", err)
	}

	// Level 3 pays nothing but the walk still reaches level 4.
	if got := balanceOf(t, store, b.Id); !got.IsZero() {
		t.Fatalf("level 3 balance = %s, want 0", got)
	}
	if got := balanceOf(t, store, a.Id); !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("level 4 balance = %s, want 1", got)
	}
}
