package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ojomine/internal/ojomine"
)

// GetReferrals reports per-level referral earnings for the caller.
func GetReferrals(c *gin.Context) {
	s := getServices(c)
	user, ok := currentUser(c, s)
	if !ok {
		return
	}

	data, err := ojomine.BuildRefData(s.App.Db, user.Id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}
