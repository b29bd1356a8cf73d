package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ojomine/internal/api/jwt"
	"ojomine/internal/ojomine"
)

type signinParams struct {
	Username string `json:"username" binding:"required"`
}

// Register creates a member account with its zero-balance wallet and signs
// it in. Identity verification lives in the upstream session service; this
// core trusts the username it is handed.
func Register(c *gin.Context) {
	s := getServices(c)

	var reg ojomine.Registration
	if err := c.ShouldBindJSON(&reg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := ojomine.RegisterUser(s.App.Db, s.App.Config(c), reg)
	if err != nil {
		fail(c, err)
		return
	}

	token, err := jwt.GenerateJWT(user.Id, user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// Signin exchanges a username for a token. Like Register, it trusts the
// caller: credential checks happen in the upstream session service, and this
// endpoint must only be reachable through it, never exposed directly.
func Signin(c *gin.Context) {
	s := getServices(c)

	var params signinParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user ojomine.User
	res := s.App.Db.Where("username = ? AND status = ?", params.Username, ojomine.UserActive).First(&user)
	if res.Error != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := jwt.GenerateJWT(user.Id, user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
