package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ojomine/internal/ojomine"
)

type resolveParams struct {
	Approve    bool   `json:"approve"`
	AdminNotes string `json:"admin_notes"`
}

type offeringParams struct {
	Name   string          `json:"name" binding:"required"`
	Price  decimal.Decimal `json:"price" binding:"required"`
	Status string          `json:"status"`
}

func requestId(c *gin.Context) (uint, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return 0, false
	}
	return uint(id), true
}

// ListWithdrawals returns requests for review, optionally filtered by
// status (?status=pending).
func ListWithdrawals(c *gin.Context) {
	s := getServices(c)
	if _, ok := requireAdmin(c, s); !ok {
		return
	}

	query := s.App.Db.Order("created_at DESC")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	var requests []ojomine.WithdrawalRequest
	if err := query.Find(&requests).Error; err != nil {
		fail(c, err)
		return
	}
	var pending int64
	s.App.Db.Model(&ojomine.WithdrawalRequest{}).
		Where("status = ?", ojomine.RequestPending).Count(&pending)
	c.JSON(http.StatusOK, gin.H{"results": requests, "pending": pending})
}

func ListRefills(c *gin.Context) {
	s := getServices(c)
	if _, ok := requireAdmin(c, s); !ok {
		return
	}

	query := s.App.Db.Order("created_at DESC")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	var requests []ojomine.RefillRequest
	if err := query.Find(&requests).Error; err != nil {
		fail(c, err)
		return
	}
	var pending int64
	s.App.Db.Model(&ojomine.RefillRequest{}).
		Where("status = ?", ojomine.RequestPending).Count(&pending)
	c.JSON(http.StatusOK, gin.H{"results": requests, "pending": pending})
}

// ResolveWithdrawal approves or rejects a pending withdrawal, exactly once.
func ResolveWithdrawal(c *gin.Context) {
	s := getServices(c)
	if _, ok := requireAdmin(c, s); !ok {
		return
	}
	id, ok := requestId(c)
	if !ok {
		return
	}

	var params resolveParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.Workflow.ResolveWithdrawal(id, params.Approve, params.AdminNotes); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func ResolveRefill(c *gin.Context) {
	s := getServices(c)
	if _, ok := requireAdmin(c, s); !ok {
		return
	}
	id, ok := requestId(c)
	if !ok {
		return
	}

	var params resolveParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.Workflow.ResolveRefill(id, params.Approve, params.AdminNotes); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func GetSettings(c *gin.Context) {
	s := getServices(c)
	if _, ok := requireAdmin(c, s); !ok {
		return
	}
	c.JSON(http.StatusOK, s.App.Config(c))
}

// UpdateSettings persists the tunable parameters; they take effect on the
// next operation, no restart needed.
func UpdateSettings(c *gin.Context) {
	s := getServices(c)
	if _, ok := requireAdmin(c, s); !ok {
		return
	}

	var cfg ojomine.AppConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.App.SaveConfig(c, &cfg); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, &cfg)
}

func CreateOffering(c *gin.Context) {
	s := getServices(c)
	if _, ok := requireAdmin(c, s); !ok {
		return
	}

	var params offeringParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if params.Status == "" {
		params.Status = ojomine.PackageOfferActive
	}
	offering := ojomine.Package{Name: params.Name, Price: params.Price, Status: params.Status}
	if err := s.App.Db.Create(&offering).Error; err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, offering)
}

// UpdateOffering edits a catalog entry. Owned packages keep their snapshot
// price, so repricing never touches past purchases.
func UpdateOffering(c *gin.Context) {
	s := getServices(c)
	if _, ok := requireAdmin(c, s); !ok {
		return
	}
	id, ok := requestId(c)
	if !ok {
		return
	}

	var params offeringParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var offering ojomine.Package
	if err := s.App.Db.First(&offering, "id = ?", id).Error; err != nil {
		fail(c, err)
		return
	}
	offering.Name = params.Name
	offering.Price = params.Price
	if params.Status != "" {
		offering.Status = params.Status
	}
	if err := s.App.Db.Save(&offering).Error; err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, offering)
}

// RunMonthlyBatch enqueues the bonus sweep for the worker.
func RunMonthlyBatch(c *gin.Context) {
	s := getServices(c)
	if _, ok := requireAdmin(c, s); !ok {
		return
	}

	if s.App.Aqc != nil {
		if _, err := s.App.Aqc.Enqueue(ojomine.NewMonthlyBatchTask()); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"queued": true})
		return
	}
	result, err := s.Processor.Run(c)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
