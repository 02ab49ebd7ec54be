package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"github.com/shopspring/decimal"

	"subscription_live/internal/audit"
	"subscription_live/internal/coupon"
	"subscription_live/internal/metrics"
	"subscription_live/internal/models"
	"subscription_live/internal/notify"
	"subscription_live/internal/payment"
	"subscription_live/internal/subscription"
)

var (
	ErrCartEmpty      = errors.New("your cart is empty")
	ErrCouponInvalid  = errors.New("coupon cannot be applied")
	ErrUnknownPayment = errors.New("unknown payment")
	ErrOrderNotPaid   = errors.New("order is not paid")
)

// FreeGateway marks orders fully covered by a coupon.
const FreeGateway = "free"

// Callback statuses sent back by the gateway redirect.
const (
	CallbackSuccess = "success"
	CallbackFailure = "failure"
	CallbackCancel  = "cancel"
)

// Orders is the order storage used by checkout. Transition changes the status
// only if it still equals from, and reports whether it did.
type Orders interface {
	Create(ctx context.Context, o models.Order) error
	Get(ctx context.Context, id gocql.UUID) (*models.Order, error)
	SetPayment(ctx context.Context, id gocql.UUID, paymentID string) error
	Transition(ctx context.Context, id gocql.UUID, from, to, trxID string) (bool, error)
	UpdateItems(ctx context.Context, id gocql.UUID, items []models.OrderItem) error
}

type Payments interface {
	Save(ctx context.Context, rec models.PaymentRecord) error
	Get(ctx context.Context, paymentID string) (*models.PaymentRecord, error)
	UpdateStatus(ctx context.Context, paymentID, status, trxID string) error
}

type Carts interface {
	Get(ctx context.Context, userID string) (*models.Cart, error)
	Reprice(ctx context.Context, items []models.CartItem) ([]models.CartItem, error)
	Clear(ctx context.Context, userID string) error
}

type Coupons interface {
	Validate(ctx context.Context, code, userID string, items []models.CartItem) (*models.Coupon, models.CouponValidation, error)
	Lookup(ctx context.Context, code string) (*models.Coupon, error)
	Redeem(ctx context.Context, c models.Coupon, userID string, orderID gocql.UUID) error
}

type Grants interface {
	Allocate(ctx context.Context, category, holder string) (*models.Tool, error)
	Release(ctx context.Context, toolID, holder string) error
}

type Subscriptions interface {
	Create(ctx context.Context, s models.Subscription) error
}

type Notifier interface {
	OrderConfirmed(ctx context.Context, order models.Order) error
}

type Auditor interface {
	Log(entry models.AuditLog)
}

type Config struct {
	// CallbackURL is where the gateway sends the customer back; the order id is appended.
	CallbackURL string
	Currency    string
}

type Service struct {
	cfg      Config
	orders   Orders
	payments Payments
	carts    Carts
	coupons  Coupons
	grants   Grants
	subs     Subscriptions
	gateways *payment.Registry
	notifier Notifier
	auditor  Auditor
	now      func() time.Time

	// locks serialises completion of one payment within this process. Entries
	// are never removed so every caller for a payment shares one mutex.
	locks sync.Map
}

type Deps struct {
	Orders        Orders
	Payments      Payments
	Carts         Carts
	Coupons       Coupons
	Grants        Grants
	Subscriptions Subscriptions
	Gateways      *payment.Registry
	Notifier      Notifier
	Auditor       Auditor
}

func NewService(cfg Config, d Deps) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "BDT"
	}
	return &Service{
		cfg:      cfg,
		orders:   d.Orders,
		payments: d.Payments,
		carts:    d.Carts,
		coupons:  d.Coupons,
		grants:   d.Grants,
		subs:     d.Subscriptions,
		gateways: d.Gateways,
		notifier: d.Notifier,
		auditor:  d.Auditor,
		now:      time.Now,
	}
}

// Customer identifies who is checking out.
type Customer struct {
	ID    string
	Email string
}

type StartRequest struct {
	Gateway    string `json:"gateway"`
	CouponCode string `json:"coupon_code"`
}

type StartResult struct {
	Order        *models.Order `json:"order"`
	PaymentID    string        `json:"payment_id,omitempty"`
	RedirectURL  string        `json:"redirect_url,omitempty"`
	ClientSecret string        `json:"client_secret,omitempty"`
	QRCode       string        `json:"qr_code,omitempty"`
}

// Start turns the customer's cart into a pending order and opens a payment for it.
func (s *Service) Start(ctx context.Context, customer Customer, req StartRequest) (*StartResult, error) {
	cart, err := s.carts.Get(ctx, customer.ID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, ErrCartEmpty
	}

	items, err := s.carts.Reprice(ctx, cart.Items)
	if err != nil {
		return nil, err
	}
	subtotal := coupon.Subtotal(items)

	discount := decimal.Zero
	code := ""
	if strings.TrimSpace(req.CouponCode) != "" {
		_, v, err := s.coupons.Validate(ctx, req.CouponCode, customer.ID, items)
		if err != nil {
			return nil, err
		}
		if !v.IsValid {
			return nil, fmt.Errorf("%w: %s", ErrCouponInvalid, v.ErrorMessage)
		}
		discount = decimal.NewFromFloat(v.Discount)
		code = v.Code
	}
	total := decimal.Max(subtotal.Sub(discount), decimal.Zero).Round(2)

	var gw payment.Gateway
	gatewayName := FreeGateway
	if total.IsPositive() {
		if gw, err = s.gateways.Get(req.Gateway); err != nil {
			return nil, err
		}
		gatewayName = gw.Name()
	}

	now := s.now()
	order := models.Order{
		ID:         gocql.TimeUUID(),
		UserID:     customer.ID,
		Email:      customer.Email,
		Items:      ExpandItems(items),
		Subtotal:   subtotal.Round(2).InexactFloat64(),
		Discount:   discount.InexactFloat64(),
		Total:      total.InexactFloat64(),
		CouponCode: code,
		Gateway:    gatewayName,
		Status:     models.OrderPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	metrics.CheckoutsStarted.WithLabelValues(gatewayName).Inc()
	log.Printf("🛒 Order %s created for %s (%s %s)", order.ID, customer.Email, total.StringFixed(2), s.cfg.Currency)

	if gw == nil {
		paid, err := s.finalize(ctx, order, "", "")
		if err != nil {
			return nil, err
		}
		return &StartResult{Order: paid}, nil
	}

	session, err := gw.CreatePayment(ctx, payment.CreateRequest{
		OrderID:     order.ID.String(),
		Amount:      order.Total,
		Currency:    s.cfg.Currency,
		PayerRef:    customer.ID,
		Email:       customer.Email,
		CallbackURL: s.callbackURL(order.ID),
	})
	if err != nil {
		s.fail(ctx, &order, "", models.OrderFailed)
		return nil, err
	}

	if err := s.payments.Save(ctx, models.PaymentRecord{
		PaymentID: session.PaymentID,
		Gateway:   gatewayName,
		OrderID:   order.ID,
		UserID:    customer.ID,
		Amount:    order.Total,
		Currency:  s.cfg.Currency,
		Status:    payment.StatusInitiated,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("save payment: %w", err)
	}
	if err := s.orders.SetPayment(ctx, order.ID, session.PaymentID); err != nil {
		return nil, fmt.Errorf("attach payment to order: %w", err)
	}
	order.PaymentID = session.PaymentID

	result := &StartResult{
		Order:        &order,
		PaymentID:    session.PaymentID,
		RedirectURL:  session.RedirectURL,
		ClientSecret: session.ClientSecret,
	}
	if session.RedirectURL != "" {
		if qr, err := notify.PaymentQR(session.RedirectURL); err == nil {
			result.QRCode = qr
		} else {
			log.Printf("⚠️ Payment QR not generated: %v", err)
		}
	}
	return result, nil
}

func (s *Service) callbackURL(orderID gocql.UUID) string {
	if s.cfg.CallbackURL == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(s.cfg.CallbackURL, "?") {
		sep = "&"
	}
	return s.cfg.CallbackURL + sep + "orderId=" + orderID.String()
}

// ExpandItems turns cart lines into one order item per purchased unit.
func ExpandItems(items []models.CartItem) []models.OrderItem {
	var out []models.OrderItem
	for _, item := range items {
		for n := 0; n < item.Quantity; n++ {
			out = append(out, models.OrderItem{
				ProductID: item.ProductID,
				Name:      item.Name,
				Category:  strings.ToLower(item.Category),
				Price:     item.Price,
				Month:     item.Month,
			})
		}
	}
	return out
}

// Payment returns the stored record of a payment started at checkout.
func (s *Service) Payment(ctx context.Context, paymentID string) (*models.PaymentRecord, error) {
	rec, err := s.payments.Get(ctx, paymentID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrUnknownPayment
	}
	return rec, err
}

// Complete settles a payment after the gateway callback. It is safe to call more
// than once for the same payment.
func (s *Service) Complete(ctx context.Context, paymentID, callbackStatus string) (*models.Order, error) {
	lock, _ := s.locks.LoadOrStore(paymentID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	rec, err := s.payments.Get(ctx, paymentID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrUnknownPayment
	}
	if err != nil {
		return nil, err
	}
	order, err := s.orders.Get(ctx, rec.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPending {
		return order, nil
	}

	switch strings.ToLower(callbackStatus) {
	case CallbackSuccess, "":
	case CallbackCancel:
		s.fail(ctx, order, paymentID, models.OrderCancelled)
		return order, nil
	default:
		s.fail(ctx, order, paymentID, models.OrderFailed)
		return order, nil
	}

	gw, err := s.gateways.Get(order.Gateway)
	if err != nil {
		return nil, err
	}
	res, err := s.settle(ctx, gw, paymentID)
	if err != nil {
		return nil, err
	}
	if res.Status == payment.StatusInitiated {
		// still processing at the gateway; a later callback settles it
		return order, nil
	}
	if !res.Completed() {
		log.Printf("❌ Payment %s for order %s ended as %s", paymentID, order.ID, res.Status)
		s.fail(ctx, order, paymentID, models.OrderFailed)
		return order, nil
	}

	return s.finalize(ctx, *order, paymentID, res.TrxID)
}

// settle executes the payment. When execution errors, the status is queried
// once so a timeout or a repeated execute does not lose a completed payment.
func (s *Service) settle(ctx context.Context, gw payment.Gateway, paymentID string) (*payment.Result, error) {
	res, execErr := gw.ExecutePayment(ctx, paymentID)
	if execErr == nil {
		return res, nil
	}
	log.Printf("⚠️ Execute of %s failed, querying status: %v", paymentID, execErr)

	res, err := gw.QueryPayment(ctx, paymentID)
	if err != nil {
		var gwErr *payment.GatewayError
		if errors.As(execErr, &gwErr) {
			return &payment.Result{PaymentID: paymentID, Status: payment.StatusFailed}, nil
		}
		return nil, fmt.Errorf("payment %s unresolved: %w", paymentID, execErr)
	}
	return res, nil
}

func (s *Service) fail(ctx context.Context, order *models.Order, paymentID, status string) {
	if _, err := s.orders.Transition(ctx, order.ID, models.OrderPending, status, ""); err != nil {
		log.Printf("❌ Order %s not marked %s: %v", order.ID, status, err)
	}
	order.Status = status
	if paymentID != "" {
		payStatus := payment.StatusFailed
		if status == models.OrderCancelled {
			payStatus = payment.StatusCancelled
		}
		if err := s.payments.UpdateStatus(ctx, paymentID, payStatus, ""); err != nil {
			log.Printf("❌ Payment %s not marked %s: %v", paymentID, payStatus, err)
		}
	}
	metrics.Payments.WithLabelValues(order.Gateway, status).Inc()
}

// finalize marks the order paid and delivers what was bought.
func (s *Service) finalize(ctx context.Context, order models.Order, paymentID, trxID string) (*models.Order, error) {
	applied, err := s.orders.Transition(ctx, order.ID, models.OrderPending, models.OrderPaid, trxID)
	if err != nil {
		return nil, fmt.Errorf("mark order paid: %w", err)
	}
	if !applied {
		return s.orders.Get(ctx, order.ID)
	}
	order.Status = models.OrderPaid
	order.TrxID = trxID
	metrics.Payments.WithLabelValues(order.Gateway, payment.StatusCompleted).Inc()
	log.Printf("💰 Order %s paid (trx %s)", order.ID, trxID)

	if paymentID != "" {
		if err := s.payments.UpdateStatus(ctx, paymentID, payment.StatusCompleted, trxID); err != nil {
			log.Printf("❌ Payment %s not marked completed: %v", paymentID, err)
		}
	}

	if order.CouponCode != "" {
		s.redeemCoupon(ctx, order)
	}

	for i := range order.Items {
		s.grant(ctx, &order, i)
	}
	if err := s.orders.UpdateItems(ctx, order.ID, order.Items); err != nil {
		log.Printf("❌ Grants of order %s not saved: %v", order.ID, err)
	}

	if err := s.carts.Clear(ctx, order.UserID); err != nil {
		log.Printf("⚠️ Cart of %s not cleared: %v", order.UserID, err)
	}

	if s.notifier != nil {
		go func(o models.Order) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := s.notifier.OrderConfirmed(ctx, o); err != nil {
				log.Printf("❌ Confirmation for order %s not sent: %v", o.ID, err)
			}
		}(order)
	}
	return &order, nil
}

func (s *Service) redeemCoupon(ctx context.Context, order models.Order) {
	c, err := s.coupons.Lookup(ctx, order.CouponCode)
	if err == nil {
		err = s.coupons.Redeem(ctx, *c, order.UserID, order.ID)
	}
	if err != nil {
		log.Printf("❌ Coupon %s not redeemed for order %s: %v", order.CouponCode, order.ID, err)
	}
}

// grant allocates a tool seat for one item and opens its subscription. A failed
// allocation or subscription write leaves the item grant_pending for a later retry.
func (s *Service) grant(ctx context.Context, order *models.Order, index int) {
	item := &order.Items[index]
	if item.GrantStatus == models.GrantGranted {
		return
	}
	holder := order.HolderKey(index)

	tool, err := s.grants.Allocate(ctx, item.Category, holder)
	if err != nil {
		s.grantPending(order, index, err)
		return
	}

	start := s.now()
	toolID := tool.ID.String()
	expire := models.ExpireAfter(start, item.Month)
	item.ToolID = &toolID
	item.ExpireDate = &expire

	if err := s.subs.Create(ctx, subscription.ForItem(*order, index, start)); err != nil {
		if relErr := s.grants.Release(ctx, toolID, holder); relErr != nil {
			log.Printf("❌ Seat %s for %s not released: %v", toolID, holder, relErr)
		}
		item.ToolID = nil
		item.ExpireDate = nil
		s.grantPending(order, index, fmt.Errorf("create subscription: %w", err))
		return
	}

	item.GrantStatus = models.GrantGranted
	metrics.ToolGrants.WithLabelValues(item.Category, "granted").Inc()
}

func (s *Service) grantPending(order *models.Order, index int, cause error) {
	item := &order.Items[index]
	item.GrantStatus = models.GrantPending
	metrics.ToolGrants.WithLabelValues(item.Category, "pending").Inc()
	log.Printf("❌ Grant for %s on order %s pending: %v", item.Name, order.ID, cause)
	if s.auditor != nil {
		s.auditor.Log(models.AuditLog{
			UserID:     order.UserID,
			UserEmail:  order.Email,
			Action:     audit.ActionGrantFailed,
			Resource:   audit.ResourceOrder,
			ResourceID: order.HolderKey(index),
			ErrorMsg:   cause.Error(),
		})
	}
}

// RetryGrants re-runs allocation for the items of a paid order still waiting on a tool.
func (s *Service) RetryGrants(ctx context.Context, orderID gocql.UUID) (*models.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPaid {
		return nil, ErrOrderNotPaid
	}

	pending := order.PendingGrants()
	if len(pending) == 0 {
		return order, nil
	}
	for _, i := range pending {
		s.grant(ctx, order, i)
	}
	if err := s.orders.UpdateItems(ctx, order.ID, order.Items); err != nil {
		return nil, fmt.Errorf("save grants: %w", err)
	}
	log.Printf("🔁 Retried %d grants on order %s, %d still pending", len(pending), order.ID, len(order.PendingGrants()))
	return order, nil
}
