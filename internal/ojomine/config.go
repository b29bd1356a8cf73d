package ojomine

import (
	"context"
	"encoding/json"
	"os"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const configKey = "app_config"

type App struct {
	Rdb *redis.Client
	Db  *gorm.DB
	Aqc *asynq.Client
}

// AppConfig carries the administrator-tunable parameters. It is read through
// App.Config so settings changed at runtime (stored in redis) take effect
// without a restart; components receive it explicitly, never as a global.
type AppConfig struct {
	Settings AppSettings `json:"settings"`
	UsdRate  float64     `json:"usd_rate"` // fixed display rate, no conversion logic
}

type AppSettings struct {
	Ref      RefSettings      `json:"ref"`
	Bonus    BonusSettings    `json:"bonus"`
	Limits   LimitSettings    `json:"limits"`
	Transfer TransferSettings `json:"transfer"`
	Sponsor  SponsorSettings  `json:"sponsor"`
}

// RefSettings holds the per-level commission percentages (integer percent,
// 0-100). Level 1 is the buyer's own purchase and never pays.
type RefSettings struct {
	LvlTwo   int64 `json:"lvl_two"`
	LvlThree int64 `json:"lvl_three"`
	LvlFour  int64 `json:"lvl_four"`
	LvlFive  int64 `json:"lvl_five"`
}

func (r RefSettings) LevelPercent(level uint) int64 {
	switch level {
	case 2:
		return r.LvlTwo
	case 3:
		return r.LvlThree
	case 4:
		return r.LvlFour
	case 5:
		return r.LvlFive
	}
	return 0
}

type BonusSettings struct {
	MonthlyPercentage int64 `json:"monthly_percentage"`
	Months            uint  `json:"months"` // total bonus cycles per package
}

type LimitSettings struct {
	WithdrawMin float64 `json:"withdraw_min"`
	WithdrawMax float64 `json:"withdraw_max"` // 0 = no cap
	RefillMin   float64 `json:"refill_min"`
}

type TransferSettings struct {
	Min              float64 `json:"min"`
	Max              float64 `json:"max"`
	ChargePercentage int64   `json:"charge_percentage"`
	AdminUserId      uint    `json:"admin_user_id"` // charge collector
}

type SponsorSettings struct {
	DefaultSponsorEnabled bool `json:"default_sponsor_enabled"`
	OrphanPrevention      bool `json:"orphan_prevention"`
}

func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Settings: AppSettings{
			Ref: RefSettings{
				LvlTwo:   10,
				LvlThree: 1,
				LvlFour:  1,
				LvlFive:  1,
			},
			Bonus: BonusSettings{
				MonthlyPercentage: 50,
				Months:            3,
			},
			Limits: LimitSettings{
				WithdrawMin: 10,
				WithdrawMax: 0,
				RefillMin:   20,
			},
			Transfer: TransferSettings{
				Min:              1,
				Max:              10000,
				ChargePercentage: 5,
				AdminUserId:      1,
			},
			Sponsor: SponsorSettings{
				DefaultSponsorEnabled: true,
				OrphanPrevention:      true,
			},
		},
		UsdRate: 1,
	}
}

// ConfigFn supplies the current configuration to a component at call time.
type ConfigFn func() *AppConfig

func Init() *App {
	loadEnv()
	app := &App{
		Rdb: setupRedis(),
		Db:  setupDb(),
		Aqc: setupAsynqClient(),
	}
	app.seedConfig()
	return app
}

// InitLite skips the asynq client, for processes that never enqueue tasks.
func InitLite() *App {
	loadEnv()
	app := &App{
		Rdb: setupRedis(),
		Db:  setupDb(),
	}
	app.seedConfig()
	return app
}

func (a *App) seedConfig() {
	raw, _ := a.Rdb.Get(context.Background(), configKey).Result()
	if len(raw) > 0 {
		var cfg AppConfig
		if err := json.Unmarshal([]byte(raw), &cfg); err == nil {
			return
		}
	}
	encoded, _ := json.Marshal(DefaultAppConfig())
	a.Rdb.Set(context.Background(), configKey, encoded, 0)
}

// Config returns the current settings, preferring the redis-stored override
// saved by administrators and falling back to the defaults.
func (a *App) Config(ctx context.Context) *AppConfig {
	cfg := DefaultAppConfig()
	if a.Rdb == nil {
		return cfg
	}
	raw, err := a.Rdb.Get(ctx, configKey).Result()
	if err != nil || len(raw) == 0 {
		return cfg
	}
	if err := json.Unmarshal([]byte(raw), cfg); err != nil {
		return DefaultAppConfig()
	}
	return cfg
}

func (a *App) SaveConfig(ctx context.Context, cfg *AppConfig) error {
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return a.Rdb.Set(ctx, configKey, encoded, 0).Err()
}

func (a *App) ConfigFn() ConfigFn {
	return func() *AppConfig {
		return a.Config(context.Background())
	}
}

// Models lists every persisted type, shared by AutoMigrate and the test
// databases.
func Models() []interface{} {
	return []interface{}{
		&User{},
		&Ewallet{},
		&EwalletTransaction{},
		&Package{},
		&UserPackage{},
		&MonthlyBonus{},
		&ReferralBonus{},
		&WithdrawalRequest{},
		&RefillRequest{},
	}
}

func setupRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})
}

func setupDb() *gorm.DB {
	dsn := os.Getenv("DB_DSN")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		panic("failed to connect to the db")
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		panic("failed to run migrations")
	}
	return db
}

func setupAsynqClient() *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
}

// SetupAsynqServer builds the background worker that runs commission payouts
// and the monthly bonus batch.
func SetupAsynqServer() *asynq.Server {
	concurrency, err := strconv.Atoi(os.Getenv("WORKER_CONCURRENCY"))
	if err != nil || concurrency < 1 {
		concurrency = 10
	}
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"commissions": 3,
				"bonuses":     1,
			},
		},
	)
}

func loadEnv() {
	env := os.Getenv("APP_ENV")
	if "" == env {
		env = "development"
	}

	godotenv.Load(".env." + env + ".local")

	if "test" != env {
		godotenv.Load(".env.local")
	}
	godotenv.Load(".env." + env)
	godotenv.Load()
}
