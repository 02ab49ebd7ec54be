package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"subscription_live/internal/handlers"
	"subscription_live/internal/models"
)

func (h *Handler) ListSubscriptions(c *gin.Context) {
	status := c.Query("status")
	subs, err := h.Subscriptions.List(c.Request.Context(), status)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	if subs == nil {
		subs = []models.Subscription{}
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs, "count": len(subs), "status": status})
}

// SweepSubscriptions runs the expiry sweep now instead of waiting for the ticker.
func (h *Handler) SweepSubscriptions(c *gin.Context) {
	res, err := h.Subscriptions.Sweep(c.Request.Context(), h.now())
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
