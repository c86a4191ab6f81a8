package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"examgate_backend/internal/config"
)

// ConfigController exposes the timing knobs exam clients need to render
// countdowns consistently with the server.
type ConfigController struct {
	Cfg *config.Config
}

func (cc *ConfigController) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"timezone":               cc.Cfg.Timezone,
		"grace_period_seconds":   int(cc.Cfg.GracePeriod().Seconds()),
		"sweep_interval_seconds": int(cc.Cfg.SweepInterval().Seconds()),
	})
}
