package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"subscription_live/internal/audit"
	"subscription_live/internal/handlers"
	"subscription_live/internal/models"
)

// ListOrders lists orders newest first, filtered by ?status=.
func (h *Handler) ListOrders(c *gin.Context) {
	status := c.Query("status")
	orders, err := h.Orders.List(c.Request.Context(), status, queryLimit(c, 100, 500))
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders), "status": status})
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := handlers.ParamUUID(c, "id")
	if !ok {
		return
	}
	o, err := h.Orders.Get(c.Request.Context(), id)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// RefundOrder refunds a paid order through its gateway and revokes its seats.
func (h *Handler) RefundOrder(c *gin.Context) {
	id, ok := handlers.ParamUUID(c, "id")
	if !ok {
		return
	}
	var in struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&in)

	o, err := h.Orders.Refund(c.Request.Context(), id, in.Reason)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.Set(audit.KeyOldValue, models.OrderPaid)
	c.Set(audit.KeyNewValue, gin.H{"status": o.Status, "reason": in.Reason})
	c.JSON(http.StatusOK, o)
}

func (h *Handler) RetryGrants(c *gin.Context) {
	id, ok := handlers.ParamUUID(c, "id")
	if !ok {
		return
	}
	o, err := h.Grants.RetryGrants(c.Request.Context(), id)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o, "pending": len(o.PendingGrants())})
}
