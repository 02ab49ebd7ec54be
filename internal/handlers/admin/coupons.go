package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"subscription_live/internal/audit"
	"subscription_live/internal/coupon"
	"subscription_live/internal/handlers"
	"subscription_live/internal/models"
)

func (h *Handler) CreateCoupon(c *gin.Context) {
	var in coupon.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "Invalid coupon: "+err.Error())
		return
	}
	cp, err := h.Coupons.Create(c.Request.Context(), in, c.GetString("user_id"))
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.Set(audit.KeyResourceID, cp.ID.String())
	c.JSON(http.StatusCreated, cp)
}

func (h *Handler) ListCoupons(c *gin.Context) {
	coupons, err := h.Coupons.List(c.Request.Context())
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	if coupons == nil {
		coupons = []models.Coupon{}
	}
	c.JSON(http.StatusOK, gin.H{"coupons": coupons, "count": len(coupons)})
}

func (h *Handler) UpdateCoupon(c *gin.Context) {
	id, ok := handlers.ParamUUID(c, "id")
	if !ok {
		return
	}
	var in coupon.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "Invalid coupon update")
		return
	}
	cp, err := h.Coupons.Update(c.Request.Context(), id, in)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

func (h *Handler) DeleteCoupon(c *gin.Context) {
	id, ok := handlers.ParamUUID(c, "id")
	if !ok {
		return
	}
	if err := h.Coupons.Delete(c.Request.Context(), id); err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Coupon deleted"})
}
