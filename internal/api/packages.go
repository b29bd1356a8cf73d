package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ojomine/internal/lifecycle"
	"ojomine/internal/ojomine"
)

type purchaseParams struct {
	PackageId uint `json:"package_id" binding:"required"`
}

type packageActionParams struct {
	Action string `json:"action" binding:"required"` // withdraw or remine
}

// GetPackages lists the active catalog offerings.
func GetPackages(c *gin.Context) {
	s := getServices(c)

	var offerings []ojomine.Package
	if err := s.App.Db.Where("status = ?", ojomine.PackageOfferActive).
		Order("price ASC").Find(&offerings).Error; err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, offerings)
}

func GetMyPackages(c *gin.Context) {
	s := getServices(c)
	user, ok := currentUser(c, s)
	if !ok {
		return
	}

	var owned []ojomine.UserPackage
	if err := s.App.Db.Where("user_id = ?", user.Id).
		Order("created_at DESC").Find(&owned).Error; err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, owned)
}

// PurchasePackage buys an offering for the caller; the commission payout is
// queued after the purchase commits.
func PurchasePackage(c *gin.Context) {
	s := getServices(c)
	user, ok := currentUser(c, s)
	if !ok {
		return
	}

	var params purchaseParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	up, err := s.Manager.Purchase(user.Id, params.PackageId)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, up)
}

// PackageAction applies the terminal withdraw-or-remine choice to one of the
// caller's completed packages.
func PackageAction(c *gin.Context) {
	s := getServices(c)
	user, ok := currentUser(c, s)
	if !ok {
		return
	}
	upId, err := strconv.Atoi(c.Param("id"))
	if err != nil || upId < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid package id"})
		return
	}

	var params packageActionParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if params.Action != lifecycle.ActionWithdraw && params.Action != lifecycle.ActionRemine {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be withdraw or remine"})
		return
	}

	if err := s.Manager.WithdrawOrRemine(user.Id, uint(upId), params.Action); err != nil {
		fail(c, err)
		return
	}

	var up ojomine.UserPackage
	if err := s.App.Db.First(&up, "id = ?", upId).Error; err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, up)
}
