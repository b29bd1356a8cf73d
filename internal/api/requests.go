package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ojomine/internal/ojomine"
)

type withdrawParams struct {
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	WalletAddress string          `json:"wallet_address" binding:"required"`
}

type refillParams struct {
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	TransactionHash string          `json:"transaction_hash" binding:"required"`
}

// CreateWithdrawal files a withdrawal request and reserves the funds.
func CreateWithdrawal(c *gin.Context) {
	s := getServices(c)
	user, ok := currentUser(c, s)
	if !ok {
		return
	}

	var params withdrawParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := s.Workflow.CreateWithdrawal(user.Id, params.Amount, params.WalletAddress)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// CreateRefill files a top-up claim; funds arrive only on admin approval.
func CreateRefill(c *gin.Context) {
	s := getServices(c)
	user, ok := currentUser(c, s)
	if !ok {
		return
	}

	var params refillParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := s.Workflow.CreateRefill(user.Id, params.Amount, params.TransactionHash)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func GetMyWithdrawals(c *gin.Context) {
	s := getServices(c)
	user, ok := currentUser(c, s)
	if !ok {
		return
	}

	var requests []ojomine.WithdrawalRequest
	if err := s.App.Db.Where("user_id = ?", user.Id).
		Order("created_at DESC").Find(&requests).Error; err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, requests)
}

func GetMyRefills(c *gin.Context) {
	s := getServices(c)
	user, ok := currentUser(c, s)
	if !ok {
		return
	}

	var requests []ojomine.RefillRequest
	if err := s.App.Db.Where("user_id = ?", user.Id).
		Order("created_at DESC").Find(&requests).Error; err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, requests)
}
