package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetConfig exposes the member-relevant limits so clients can validate
// before submitting.
func GetConfig(c *gin.Context) {
	s := getServices(c)
	cfg := s.App.Config(c)

	c.JSON(http.StatusOK, gin.H{
		"limits":   cfg.Settings.Limits,
		"transfer": cfg.Settings.Transfer,
		"usd_rate": cfg.UsdRate,
	})
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
