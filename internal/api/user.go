package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ojomine/internal/ojomine"
)

type transferParams struct {
	Username string          `json:"username" binding:"required"`
	Amount   decimal.Decimal `json:"amount" binding:"required"`
}

type PaginatedTx struct {
	Count    int64                        `json:"count"`
	Next     string                       `json:"next"`
	Previous string                       `json:"previous"`
	Results  []ojomine.EwalletTransaction `json:"results"`
}

// GetUser returns the member dashboard: balances, package count, bonus and
// referral totals.
func GetUser(c *gin.Context) {
	s := getServices(c)
	user, ok := currentUser(c, s)
	if !ok {
		return
	}

	stats, err := ojomine.BuildDashboardStats(s.App.Db, *user)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func GetTransactionsList(c *gin.Context) {
	s := getServices(c)
	user, ok := currentUser(c, s)
	if !ok {
		return
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", "20"))
	if err != nil || size < 1 || size > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "maximum size is 100"})
		return
	}

	results, err := s.Store.History(user.Id, size, (page-1)*size)
	if err != nil {
		fail(c, err)
		return
	}

	paginated := PaginatedTx{Results: results}
	s.App.Db.Model(&ojomine.EwalletTransaction{}).
		Where("user_id = ?", user.Id).Count(&paginated.Count)
	if int64(page*size) < paginated.Count {
		paginated.Next = fmt.Sprintf("/users/tx/?page=%d&size=%d", page+1, size)
	}
	if page > 1 {
		paginated.Previous = fmt.Sprintf("/users/tx/?page=%d&size=%d", page-1, size)
	}
	c.JSON(http.StatusOK, paginated)
}

// Transfer moves funds to another member, minus the configured charge.
func Transfer(c *gin.Context) {
	s := getServices(c)
	user, ok := currentUser(c, s)
	if !ok {
		return
	}

	var params transferParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var recipient ojomine.User
	res := s.App.Db.Where("username = ? AND status = ?", params.Username, ojomine.UserActive).First(&recipient)
	if res.Error != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "recipient not found"})
		return
	}

	if err := s.Store.Transfer(user.Id, recipient.Id, params.Amount, s.App.Config(c)); err != nil {
		fail(c, err)
		return
	}

	balance, err := s.Store.Balance(user.Id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}
