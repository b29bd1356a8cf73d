package server

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"ojomine/internal/api"
	"ojomine/internal/api/middleware"
	"ojomine/internal/batch"
	"ojomine/internal/logging"
	"ojomine/internal/ojomine"
)

var App *ojomine.App

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.String(429, "Too many requests. Try again in "+time.Until(info.ResetTime).String())
}

// ApiInit runs the REST server.
func ApiInit() {
	App = ojomine.Init()
	services := api.NewServices(App)

	router := gin.Default()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	// Each ip gets 100 requests per second.
	store := ratelimit.RedisStore(&ratelimit.RedisOptions{
		RedisClient: redis.NewClient(&redis.Options{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       1,
		}),
		Rate:  time.Second,
		Limit: 100,
	})
	mw := ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://0.0.0.0:3000",
			"http://localhost:3000",
		},
		AllowHeaders:  []string{"Origin", "Access-Control-Allow-Origin", "Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		AllowMethods:  []string{"GET, POST, OPTIONS, PUT, DELETE"},
		MaxAge:        24 * time.Hour,
	}))
	router.Use(func(c *gin.Context) {
		c.Set("services", services)
	})
	router.GET("/health", api.Health)
	core := router.Group("/core/")
	{
		core.GET("/config", mw, api.GetConfig)
		core.GET("/config/", mw, api.GetConfig)
		core.GET("/packages", mw, api.GetPackages)
		core.GET("/packages/", mw, api.GetPackages)
	}
	auth := router.Group("/auth/")
	{
		auth.POST("/register", mw, api.Register)
		auth.POST("/register/", mw, api.Register)
		auth.POST("/signin", mw, api.Signin)
		auth.POST("/signin/", mw, api.Signin)
	}
	users := router.Group("/users/").Use(middleware.Auth())
	{
		users.GET("/me", mw, api.GetUser)
		users.GET("/me/", mw, api.GetUser)
		users.GET("/tx", mw, api.GetTransactionsList)
		users.GET("/tx/", mw, api.GetTransactionsList)
		users.GET("/ref", mw, api.GetReferrals)
		users.GET("/ref/", mw, api.GetReferrals)
		users.POST("/transfer", mw, api.Transfer)
		users.POST("/transfer/", mw, api.Transfer)
	}
	packages := router.Group("/packages/").Use(middleware.Auth())
	{
		packages.GET("/my", mw, api.GetMyPackages)
		packages.GET("/my/", mw, api.GetMyPackages)
		packages.POST("/purchase", mw, api.PurchasePackage)
		packages.POST("/purchase/", mw, api.PurchasePackage)
		packages.POST("/action/:id", mw, api.PackageAction)
		packages.POST("/action/:id/", mw, api.PackageAction)
	}
	requests := router.Group("/requests/").Use(middleware.Auth())
	{
		requests.POST("/withdrawals", mw, api.CreateWithdrawal)
		requests.POST("/withdrawals/", mw, api.CreateWithdrawal)
		requests.GET("/withdrawals", mw, api.GetMyWithdrawals)
		requests.GET("/withdrawals/", mw, api.GetMyWithdrawals)
		requests.POST("/refills", mw, api.CreateRefill)
		requests.POST("/refills/", mw, api.CreateRefill)
		requests.GET("/refills", mw, api.GetMyRefills)
		requests.GET("/refills/", mw, api.GetMyRefills)
	}
	admin := router.Group("/admin/").Use(middleware.Auth())
	{
		admin.GET("/withdrawals", mw, api.ListWithdrawals)
		admin.GET("/withdrawals/", mw, api.ListWithdrawals)
		admin.POST("/withdrawals/:id/resolve", mw, api.ResolveWithdrawal)
		admin.POST("/withdrawals/:id/resolve/", mw, api.ResolveWithdrawal)
		admin.GET("/refills", mw, api.ListRefills)
		admin.GET("/refills/", mw, api.ListRefills)
		admin.POST("/refills/:id/resolve", mw, api.ResolveRefill)
		admin.POST("/refills/:id/resolve/", mw, api.ResolveRefill)
		admin.GET("/settings", mw, api.GetSettings)
		admin.GET("/settings/", mw, api.GetSettings)
		admin.POST("/settings", mw, api.UpdateSettings)
		admin.POST("/settings/", mw, api.UpdateSettings)
		admin.POST("/packages", mw, api.CreateOffering)
		admin.POST("/packages/", mw, api.CreateOffering)
		admin.PUT("/packages/:id", mw, api.UpdateOffering)
		admin.PUT("/packages/:id/", mw, api.UpdateOffering)
		admin.POST("/batch/monthly", mw, api.RunMonthlyBatch)
		admin.POST("/batch/monthly/", mw, api.RunMonthlyBatch)
	}
	fmt.Println("[ OjoMine Backend is up and listening to :8000 ]")
	if err := router.Run(":8000"); err != nil {
		log.Fatal("Failed to run OjoMine Backend on :8000: ", err)
	}
}

// WorkerInit runs the asynq consumer that pays commissions and the monthly
// bonus batch.
func WorkerInit() {
	App = ojomine.Init()
	services := api.NewServices(App)

	srv := ojomine.SetupAsynqServer()
	mux := asynq.NewServeMux()
	mux.HandleFunc(ojomine.TaskCommissionPay, batch.HandleCommissionTask(services.Engine))
	mux.HandleFunc(ojomine.TaskMonthlyBatch, batch.HandleMonthlyBatchTask(services.Processor))

	fmt.Println("[ OjoMine Worker is up ]")
	if err := srv.Run(mux); err != nil {
		log.Fatal("Failed to run OjoMine Worker: ", err)
	}
}

// BatchInit runs one monthly bonus sweep and exits, for cron-style
// scheduling without a resident worker.
func BatchInit() {
	App = ojomine.InitLite()
	services := api.NewServices(App)

	result, err := services.Processor.Run(context.Background())
	if err != nil {
		log.Fatal("Monthly bonus batch failed: ", err)
	}
	logging.Logger.Info(fmt.Sprintf("batch done: scanned %d, paid %d, failed %d",
		result.Scanned, result.Paid, result.Failed))
}

func init() {
	if fileLog := os.Getenv("LOG_FILE"); fileLog != "" {
		logging.SetFileLogger(fileLog)
	}
}
