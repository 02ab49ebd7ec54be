package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"subscription_live/internal/audit"
	"subscription_live/internal/handlers"
	"subscription_live/internal/handlers/admin"
	"subscription_live/internal/handlers/payment"
	"subscription_live/internal/handlers/product"
	"subscription_live/internal/handlers/user"
	"subscription_live/internal/metrics"
	"subscription_live/internal/middleware"
	"subscription_live/internal/utils"
)

// Handlers bundles everything RegisterRoutes mounts.
type Handlers struct {
	Auth     *user.AuthHandler
	OAuth    *user.OAuthHandler
	Cart     *user.CartHandler
	Orders   *user.OrderHandler
	Products *product.Handler
	Payment  *payment.Handler
	Admin    *admin.Handler

	Tokens    *utils.TokenIssuer
	Blacklist middleware.Blacklist
	Limiter   *middleware.RateLimiter
	Audit     *audit.Logger
	Upgrader  websocket.Upgrader
	Health    map[string]handlers.Check
}

func RegisterRoutes(r *gin.Engine, h Handlers) {
	r.GET("/health", handlers.Health(h.Health))
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	auth := middleware.AuthRequired(h.Tokens, h.Blacklist)

	// Catalog
	api.GET("/products", h.Products.GetProducts)
	api.GET("/products/search", h.Limiter.SearchRateLimit(), h.Products.SearchProducts)
	api.GET("/products/:id", h.Products.GetProduct)

	// Auth
	api.POST("/auth/register", h.Limiter.RegisterRateLimit(), h.Auth.Register)
	api.POST("/auth/login", h.Limiter.LoginRateLimit(), h.Auth.Login)
	api.POST("/auth/refresh", h.Auth.Refresh)
	api.POST("/auth/logout", auth, h.Auth.Logout)
	api.GET("/auth/:provider", h.OAuth.BeginAuth)
	api.GET("/auth/:provider/callback", h.OAuth.CallbackAuth)

	// Gateway callbacks
	api.GET("/payment/bkash/callback", h.Payment.BkashCallback)
	api.POST("/payment/stripe/webhook", h.Payment.StripeWebhook)

	me := api.Group("", auth, h.Limiter.APIRateLimit())
	me.GET("/me", h.Auth.Me)
	me.PUT("/me", h.Auth.UpdateMe)
	me.PUT("/me/password", h.Auth.ChangePassword)

	cart := me.Group("/cart", h.Limiter.CartRateLimit())
	{
		cart.GET("", h.Cart.GetCart)
		cart.POST("/items", h.Cart.AddItem)
		cart.PUT("/items/:productId", h.Cart.UpdateItem)
		cart.DELETE("/items/:productId", h.Cart.RemoveItem)
		cart.DELETE("", h.Cart.ClearCart)
		cart.POST("/merge", h.Cart.MergeCart)
	}
	// the socket is long lived, so it skips the request rate limits
	api.GET("/cart/ws", auth, h.Cart.CartWebSocket(h.Upgrader))

	me.GET("/coupons/validate", h.Payment.ValidateCoupon)
	me.POST("/checkout", h.Limiter.CheckoutRateLimit(), h.Payment.Checkout)
	me.POST("/checkout/:paymentId/confirm", h.Payment.Confirm)

	me.GET("/orders", h.Orders.GetOrders)
	me.GET("/orders/:id", h.Orders.GetOrder)
	me.GET("/subscriptions", h.Orders.GetSubscriptions)
	me.GET("/subscriptions/:id/credentials", h.Orders.GetCredentials)

	registerAdmin(api.Group("/admin", auth, middleware.RequireAdmin, middleware.AuditRequestBody()), h)
}

func registerAdmin(g *gin.RouterGroup, h Handlers) {
	a, p, act := h.Admin, h.Products, h.Audit.Action

	g.POST("/products", act(audit.ActionProductCreate, audit.ResourceProduct), p.CreateProduct)
	g.PUT("/products/:id", act(audit.ActionProductUpdate, audit.ResourceProduct), p.UpdateProduct)
	g.DELETE("/products/:id", act(audit.ActionProductDelete, audit.ResourceProduct), p.DeleteProduct)
	g.POST("/products/:id/image", act(audit.ActionProductImage, audit.ResourceProduct), p.UploadProductImage)

	g.GET("/coupons", a.ListCoupons)
	g.POST("/coupons", act(audit.ActionCouponCreate, audit.ResourceCoupon), a.CreateCoupon)
	g.PUT("/coupons/:id", act(audit.ActionCouponUpdate, audit.ResourceCoupon), a.UpdateCoupon)
	g.DELETE("/coupons/:id", act(audit.ActionCouponDelete, audit.ResourceCoupon), a.DeleteCoupon)

	g.GET("/tools", a.ListTools)
	g.POST("/tools", act(audit.ActionToolCreate, audit.ResourceTool), a.CreateTool)
	g.PUT("/tools/:id", act(audit.ActionToolUpdate, audit.ResourceTool), a.UpdateTool)
	g.DELETE("/tools/:id", act(audit.ActionToolDelete, audit.ResourceTool), a.DeleteTool)

	g.GET("/orders", a.ListOrders)
	g.GET("/orders/:id", a.GetOrder)
	g.POST("/orders/:id/refund", act(audit.ActionOrderRefund, audit.ResourceOrder), a.RefundOrder)
	g.POST("/orders/:id/grants/retry", act(audit.ActionGrantRetry, audit.ResourceOrder), a.RetryGrants)

	g.GET("/subscriptions", a.ListSubscriptions)
	g.POST("/subscriptions/sweep", a.SweepSubscriptions)

	g.GET("/users", a.ListUsers)
	g.PUT("/users/:id/role", act(audit.ActionRoleAssign, audit.ResourceUser), a.SetUserRole)

	g.GET("/audit", a.GetAuditLogs)
}
