package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"

	"subscription_live/internal/account"
	"subscription_live/internal/audit"
	"subscription_live/internal/auth"
	"subscription_live/internal/cache"
	"subscription_live/internal/cart"
	"subscription_live/internal/catalog"
	"subscription_live/internal/checkout"
	"subscription_live/internal/config"
	"subscription_live/internal/coupon"
	"subscription_live/internal/database"
	"subscription_live/internal/handlers"
	"subscription_live/internal/handlers/admin"
	paymenthandler "subscription_live/internal/handlers/payment"
	"subscription_live/internal/handlers/product"
	"subscription_live/internal/handlers/user"
	"subscription_live/internal/metrics"
	"subscription_live/internal/middleware"
	"subscription_live/internal/notify"
	"subscription_live/internal/order"
	"subscription_live/internal/payment"
	"subscription_live/internal/payment/bkash"
	"subscription_live/internal/payment/stripepay"
	"subscription_live/internal/routes"
	"subscription_live/internal/search"
	"subscription_live/internal/secure"
	"subscription_live/internal/storage"
	"subscription_live/internal/store"
	"subscription_live/internal/subscription"
	"subscription_live/internal/toolgrant"
	"subscription_live/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	conns, err := database.ConnectDatabases(cfg)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer conns.Close()

	productsSession := mustSession(conns.ProductsSession)
	usersSession := mustSession(conns.UsersSession)
	ordersSession := mustSession(conns.OrdersSession)

	cipher, err := secure.NewCipher(cfg.ToolSecret)
	if err != nil {
		log.Fatalf("❌ Tool secret: %v", err)
	}

	// Stores
	productStore := store.NewProducts(productsSession)
	toolStore := store.NewTools(productsSession)
	couponStore := store.NewCoupons(productsSession)
	orderStore := store.NewOrders(ordersSession)
	paymentStore := store.NewPayments(ordersSession)
	subStore := store.NewSubscriptions(ordersSession)
	userStore := store.NewUsers(usersSession)
	auditStore := store.NewAuditLogs(usersSession)

	redisCache := cache.New(conns.Redis)
	cartStore := cache.NewCartStore(redisCache)

	// Optional backends stay untyped nil so the catalog can tell they are absent.
	var index catalog.Index
	if conns.Elastic != nil {
		index = search.NewIndex(conns.Elastic, cfg.Elastic.Index)
	}
	var images catalog.Images
	if conns.MinIO != nil {
		images = storage.NewImages(conns.MinIO, cfg.MinIO.Bucket, cfg.MinIO.Endpoint, cfg.MinIO.UseSSL)
	}

	// Gateways
	var gateways []payment.Gateway
	var stripeGateway paymenthandler.WebhookParser
	if cfg.Bkash.Enabled() {
		gateways = append(gateways, bkash.New(cfg.Bkash, &http.Client{Timeout: 30 * time.Second}))
		log.Println("✅ bKash gateway enabled")
	}
	if cfg.Stripe.SecretKey != "" {
		sg := stripepay.New(cfg.Stripe)
		gateways = append(gateways, sg)
		stripeGateway = sg
		log.Println("✅ Stripe gateway enabled")
	}
	registry := payment.NewRegistry(gateways...)

	// Services
	tokens := utils.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL)
	auditLogger := audit.NewLogger(auditStore)
	notifier := notify.NewNotifier(notify.NewMailer(cfg.SMTP), cfg.Server.FrontendURL, true)

	catalogService := catalog.NewService(productStore, redisCache, index, images)
	cartService := cart.NewService(cartStore, catalogService)
	couponService := coupon.NewService(couponStore)
	allocator := toolgrant.NewAllocator(toolStore, cfg.GrantLimit)
	subService := subscription.NewService(subStore, allocator, notifier, cfg.Subscription.ReminderWindow)
	toolService := toolgrant.NewService(toolStore, subService, cipher)
	accountService := account.NewService(userStore, redisCache, tokens, cfg.Auth.RefreshTTL)
	orderService := order.NewService(orderStore, paymentStore, registry, subService, notifier)
	checkoutService := checkout.NewService(checkout.Config{
		CallbackURL: cfg.Bkash.CallbackURL,
		Currency:    cfg.Stripe.Currency,
	}, checkout.Deps{
		Orders:        orderStore,
		Payments:      paymentStore,
		Carts:         cartService,
		Coupons:       couponService,
		Grants:        allocator,
		Subscriptions: subService,
		Gateways:      registry,
		Notifier:      notifier,
		Auditor:       auditLogger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := couponService.WarmFilter(ctx); err != nil {
		log.Printf("⚠️ Coupon filter not warmed: %v", err)
	}
	go subService.Run(ctx, cfg.Subscription.SweepInterval)

	sessionSecret := cfg.Auth.SessionSecret
	if sessionSecret == "" {
		log.Println("⚠️ SESSION_SECRET missing, deriving OAuth sessions from JWT_SECRET")
		sessionSecret = cfg.Auth.JWTSecret
	}
	authCfg := cfg.Auth
	authCfg.SessionSecret = sessionSecret
	auth.InitProviders(authCfg, cfg.Server.BaseURL)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(metrics.Middleware())

	routes.RegisterRoutes(r, routes.Handlers{
		Auth:     user.NewAuthHandler(accountService),
		OAuth:    user.NewOAuthHandler(accountService, cfg.Server.FrontendURL),
		Cart:     user.NewCartHandler(cartService, cartStore),
		Orders:   user.NewOrderHandler(orderService, subService, toolService),
		Products: product.NewHandler(catalogService),
		Payment:  paymenthandler.NewHandler(checkoutService, cartService, couponService, stripeGateway, cfg.Server.FrontendURL),
		Admin: admin.NewHandler(admin.Deps{
			Coupons:       couponService,
			Tools:         toolService,
			Orders:        orderService,
			Grants:        checkoutService,
			Subscriptions: subService,
			Users:         accountService,
			Audit:         auditLogger,
		}),
		Tokens:    tokens,
		Blacklist: redisCache,
		Limiter:   middleware.NewRateLimiter(redisCache),
		Audit:     auditLogger,
		Upgrader:  user.NewUpgrader(cfg.Server.AllowedOrigins),
		Health: map[string]handlers.Check{
			"redis": func(ctx context.Context) error { return conns.Redis.Ping(ctx).Err() },
			"scylla": func(ctx context.Context) error {
				return ordersSession.Query("SELECT now() FROM system.local").WithContext(ctx).Exec()
			},
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Println("🚀 Server listening on port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("⏰ Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Forced shutdown: %v", err)
	}
	auditLogger.Wait()
	log.Println("✅ Server stopped")
}

func mustSession(open func() (*gocql.Session, error)) *gocql.Session {
	session, err := open()
	if err != nil {
		log.Fatalf("❌ ScyllaDB session: %v", err)
	}
	return session
}
