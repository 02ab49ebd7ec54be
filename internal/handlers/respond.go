package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"subscription_live/internal/account"
	"subscription_live/internal/cart"
	"subscription_live/internal/catalog"
	"subscription_live/internal/checkout"
	"subscription_live/internal/coupon"
	"subscription_live/internal/models"
	"subscription_live/internal/order"
	"subscription_live/internal/payment"
	"subscription_live/internal/search"
	"subscription_live/internal/storage"
	"subscription_live/internal/toolgrant"
)

var statusByError = []struct {
	err    error
	status int
}{
	{models.ErrNotFound, http.StatusNotFound},
	{cart.ErrItemNotFound, http.StatusNotFound},
	{checkout.ErrUnknownPayment, http.StatusNotFound},

	{models.ErrEmailTaken, http.StatusConflict},
	{coupon.ErrCodeTaken, http.StatusConflict},
	{catalog.ErrSlugTaken, http.StatusConflict},
	{coupon.ErrExhausted, http.StatusConflict},
	{order.ErrNotRefundable, http.StatusConflict},
	{checkout.ErrOrderNotPaid, http.StatusConflict},
	{toolgrant.ErrNoSeat, http.StatusConflict},

	{account.ErrInvalidCredentials, http.StatusUnauthorized},
	{account.ErrInvalidRefresh, http.StatusUnauthorized},

	{toolgrant.ErrForbidden, http.StatusForbidden},
	{toolgrant.ErrInactive, http.StatusForbidden},

	{account.ErrInvalidInput, http.StatusBadRequest},
	{account.ErrWeakPassword, http.StatusBadRequest},
	{account.ErrSocialAccount, http.StatusBadRequest},
	{account.ErrInvalidRole, http.StatusBadRequest},
	{catalog.ErrInvalidInput, http.StatusBadRequest},
	{cart.ErrInvalidQuantity, http.StatusBadRequest},
	{cart.ErrProductInactive, http.StatusBadRequest},
	{coupon.ErrInvalidInput, http.StatusBadRequest},
	{coupon.ErrInvalid, http.StatusBadRequest},
	{checkout.ErrCartEmpty, http.StatusBadRequest},
	{checkout.ErrCouponInvalid, http.StatusBadRequest},
	{payment.ErrUnknownGateway, http.StatusBadRequest},
	{toolgrant.ErrInvalidInput, http.StatusBadRequest},

	{storage.ErrUnsupported, http.StatusUnsupportedMediaType},

	{catalog.ErrImagesUnavailable, http.StatusServiceUnavailable},
	{storage.ErrUnavailable, http.StatusServiceUnavailable},
	{search.ErrUnavailable, http.StatusServiceUnavailable},
	{toolgrant.ErrNoToolAvailable, http.StatusServiceUnavailable},
	{toolgrant.ErrContention, http.StatusServiceUnavailable},

	{order.ErrRefundFailed, http.StatusBadGateway},
}

// Status maps a service error to the HTTP status it is reported with.
func Status(err error) int {
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	var gwErr *payment.GatewayError
	if errors.As(err, &gwErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Fail writes err as {"error": ...}. Server errors are logged and their detail
// is not sent to the client.
func Fail(c *gin.Context, err error) {
	status := Status(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable && status != http.StatusBadGateway {
		log.Printf("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

// BadRequest reports a binding or parameter error.
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

// ParamUUID parses the named path parameter, replying 400 when it is not a UUID.
func ParamUUID(c *gin.Context, name string) (gocql.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		BadRequest(c, "Invalid "+name)
		return gocql.UUID{}, false
	}
	return gocql.UUID(id), true
}
