package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	sessions func() int
}

func NewHealthHandler(sessions func() int) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	out := gin.H{"status": "ok"}
	if h.sessions != nil {
		out["sessions"] = h.sessions()
	}
	c.JSON(http.StatusOK, out)
}
