package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/gocql/gocql"

	"subscription_live/internal/models"
	"subscription_live/internal/payment"
	"subscription_live/internal/toolgrant"
)

type memOrders struct {
	mu     sync.Mutex
	orders map[gocql.UUID]models.Order
}

func (m *memOrders) Create(_ context.Context, o models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *memOrders) Get(_ context.Context, id gocql.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	o.Items = append([]models.OrderItem(nil), o.Items...)
	return &o, nil
}

func (m *memOrders) SetPayment(_ context.Context, id gocql.UUID, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[id]
	o.PaymentID = paymentID
	m.orders[id] = o
	return nil
}

func (m *memOrders) Transition(_ context.Context, id gocql.UUID, from, to, trxID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[id]
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	if trxID != "" {
		o.TrxID = trxID
	}
	m.orders[id] = o
	return true, nil
}

func (m *memOrders) UpdateItems(_ context.Context, id gocql.UUID, items []models.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[id]
	o.Items = append([]models.OrderItem(nil), items...)
	m.orders[id] = o
	return nil
}

type memPayments struct {
	mu   sync.Mutex
	recs map[string]models.PaymentRecord
}

func (m *memPayments) Save(_ context.Context, rec models.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.PaymentID] = rec
	return nil
}

func (m *memPayments) Get(_ context.Context, id string) (*models.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &rec, nil
}

func (m *memPayments) UpdateStatus(_ context.Context, id, status, trxID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.recs[id]
	rec.Status = status
	rec.TrxID = trxID
	m.recs[id] = rec
	return nil
}

type fakeCarts struct {
	items   []models.CartItem
	cleared bool
}

func (f *fakeCarts) Get(_ context.Context, userID string) (*models.Cart, error) {
	return &models.Cart{UserID: userID, Items: f.items}, nil
}

func (f *fakeCarts) Reprice(_ context.Context, items []models.CartItem) ([]models.CartItem, error) {
	return items, nil
}

func (f *fakeCarts) Clear(context.Context, string) error {
	f.cleared = true
	f.items = nil
	return nil
}

type fakeCoupons struct {
	validation models.CouponValidation
	redeemed   []gocql.UUID
}

func (f *fakeCoupons) Validate(context.Context, string, string, []models.CartItem) (*models.Coupon, models.CouponValidation, error) {
	return &models.Coupon{Code: f.validation.Code}, f.validation, nil
}

func (f *fakeCoupons) Lookup(_ context.Context, code string) (*models.Coupon, error) {
	return &models.Coupon{Code: code}, nil
}

func (f *fakeCoupons) Redeem(_ context.Context, _ models.Coupon, _ string, orderID gocql.UUID) error {
	f.redeemed = append(f.redeemed, orderID)
	return nil
}

// fakeGrants hands out seats from a fixed pool per category.
type fakeGrants struct {
	mu    sync.Mutex
	seats map[string]int
	held  map[string]string
}

func (f *fakeGrants) Allocate(_ context.Context, category, holder string) (*models.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.held[holder]; ok {
		return &models.Tool{ID: gocql.TimeUUID(), Category: category}, nil
	}
	if f.seats[category] == 0 {
		return nil, toolgrant.ErrNoToolAvailable
	}
	f.seats[category]--
	f.held[holder] = category
	return &models.Tool{ID: gocql.TimeUUID(), Category: category}, nil
}

func (f *fakeGrants) Release(_ context.Context, _, holder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if category, ok := f.held[holder]; ok {
		delete(f.held, holder)
		f.seats[category]++
	}
	return nil
}

type memSubs struct {
	mu   sync.Mutex
	subs []models.Subscription
	err  error
}

func (m *memSubs) Create(_ context.Context, s models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.subs = append(m.subs, s)
	return nil
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (f *fakeAuditor) Log(e models.AuditLog) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

type fakeGateway struct {
	mu         sync.Mutex
	executions int
	executeErr error
	result     payment.Result
	lastReq    payment.CreateRequest
}

func (g *fakeGateway) Name() string { return "fakepay" }

func (g *fakeGateway) CreatePayment(_ context.Context, req payment.CreateRequest) (*payment.Session, error) {
	g.lastReq = req
	return &payment.Session{PaymentID: "PAY-1", RedirectURL: "https://pay.example/PAY-1", Status: payment.StatusInitiated}, nil
}

func (g *fakeGateway) ExecutePayment(_ context.Context, id string) (*payment.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.executions++
	if g.executeErr != nil {
		return nil, g.executeErr
	}
	r := g.result
	r.PaymentID = id
	return &r, nil
}

func (g *fakeGateway) QueryPayment(_ context.Context, id string) (*payment.Result, error) {
	r := g.result
	r.PaymentID = id
	return &r, nil
}

func (g *fakeGateway) Refund(context.Context, payment.RefundRequest) (*payment.RefundResult, error) {
	return &payment.RefundResult{Status: payment.StatusRefunded}, nil
}

type harness struct {
	svc      *Service
	orders   *memOrders
	payments *memPayments
	carts    *fakeCarts
	coupons  *fakeCoupons
	grants   *fakeGrants
	subs     *memSubs
	auditor  *fakeAuditor
	gateway  *fakeGateway
}

func newHarness(items ...models.CartItem) *harness {
	h := &harness{
		orders:   &memOrders{orders: map[gocql.UUID]models.Order{}},
		payments: &memPayments{recs: map[string]models.PaymentRecord{}},
		carts:    &fakeCarts{items: items},
		coupons:  &fakeCoupons{},
		grants:   &fakeGrants{seats: map[string]int{"netflix": 5}, held: map[string]string{}},
		subs:     &memSubs{},
		auditor:  &fakeAuditor{},
		gateway:  &fakeGateway{result: payment.Result{TrxID: "TRX9", Status: payment.StatusCompleted}},
	}
	h.svc = NewService(Config{CallbackURL: "https://api.example/api/payment/bkash/callback"}, Deps{
		Orders:        h.orders,
		Payments:      h.payments,
		Carts:         h.carts,
		Coupons:       h.coupons,
		Grants:        h.grants,
		Subscriptions: h.subs,
		Gateways:      payment.NewRegistry(h.gateway),
		Auditor:       h.auditor,
	})
	return h
}

var netflix = models.CartItem{ProductID: "p1", Name: "Netflix Premium", Category: "Netflix", Price: 350, Month: 1, Quantity: 2}

var customer = Customer{ID: "u1", Email: "buyer@example.com"}

func TestStartEmptyCart(t *testing.T) {
	h := newHarness()
	if _, err := h.svc.Start(context.Background(), customer, StartRequest{}); !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("err = %v, want ErrCartEmpty", err)
	}
}

func TestStartOpensPayment(t *testing.T) {
	h := newHarness(netflix)
	res, err := h.svc.Start(context.Background(), customer, StartRequest{Gateway: "fakepay"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if res.Order.Status != models.OrderPending {
		t.Errorf("status = %s", res.Order.Status)
	}
	if len(res.Order.Items) != 2 {
		t.Errorf("items = %d, want one per unit", len(res.Order.Items))
	}
	if res.Order.Total != 700 {
		t.Errorf("total = %v", res.Order.Total)
	}
	if res.PaymentID != "PAY-1" || res.RedirectURL == "" {
		t.Errorf("session = %+v", res)
	}
	if !strings.HasPrefix(res.QRCode, "data:image/png;base64,") {
		t.Errorf("qr = %.30s", res.QRCode)
	}
	if !strings.Contains(h.gateway.lastReq.CallbackURL, "orderId="+res.Order.ID.String()) {
		t.Errorf("callback = %s", h.gateway.lastReq.CallbackURL)
	}
	if rec, _ := h.payments.Get(context.Background(), "PAY-1"); rec == nil || rec.OrderID != res.Order.ID {
		t.Errorf("payment record = %+v", rec)
	}
	if h.carts.cleared {
		t.Error("cart cleared before payment")
	}
}

func TestStartInvalidCoupon(t *testing.T) {
	h := newHarness(netflix)
	h.coupons.validation = models.CouponValidation{IsValid: false, ErrorMessage: "Coupon has expired"}

	_, err := h.svc.Start(context.Background(), customer, StartRequest{Gateway: "fakepay", CouponCode: "OLD"})
	if !errors.Is(err, ErrCouponInvalid) || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("err = %v", err)
	}
	if len(h.orders.orders) != 0 {
		t.Error("order created for invalid coupon")
	}
}

func TestStartFreeOrderIsFinalized(t *testing.T) {
	h := newHarness(netflix)
	h.coupons.validation = models.CouponValidation{IsValid: true, Discount: 700, Code: "FREE"}

	res, err := h.svc.Start(context.Background(), customer, StartRequest{CouponCode: "free"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.Order.Status != models.OrderPaid || res.Order.Gateway != FreeGateway {
		t.Fatalf("order = %+v", res.Order)
	}
	if h.gateway.executions != 0 || res.PaymentID != "" {
		t.Error("gateway used for a free order")
	}
	if len(h.coupons.redeemed) != 1 {
		t.Errorf("redeemed = %d", len(h.coupons.redeemed))
	}
	if len(h.subs.subs) != 2 || !h.carts.cleared {
		t.Errorf("subs = %d, cleared = %v", len(h.subs.subs), h.carts.cleared)
	}
}

func TestCompleteGrantsAndIsIdempotent(t *testing.T) {
	h := newHarness(netflix)
	ctx := context.Background()
	res, err := h.svc.Start(ctx, customer, StartRequest{Gateway: "fakepay"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	order, err := h.svc.Complete(ctx, res.PaymentID, CallbackSuccess)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if order.Status != models.OrderPaid || order.TrxID != "TRX9" {
		t.Fatalf("order = %s/%s", order.Status, order.TrxID)
	}
	for i, item := range order.Items {
		if item.GrantStatus != models.GrantGranted || item.ToolID == nil || item.ExpireDate == nil {
			t.Errorf("item %d = %+v", i, item)
		}
	}
	if len(h.subs.subs) != 2 {
		t.Errorf("subscriptions = %d", len(h.subs.subs))
	}
	if rec, _ := h.payments.Get(ctx, res.PaymentID); rec.Status != payment.StatusCompleted {
		t.Errorf("payment status = %s", rec.Status)
	}

	again, err := h.svc.Complete(ctx, res.PaymentID, CallbackSuccess)
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if again.Status != models.OrderPaid || h.gateway.executions != 1 || len(h.subs.subs) != 2 {
		t.Errorf("second call re-ran: executions=%d subs=%d", h.gateway.executions, len(h.subs.subs))
	}
}

func TestCompleteConcurrentCallbacks(t *testing.T) {
	h := newHarness(netflix)
	ctx := context.Background()
	res, _ := h.svc.Start(ctx, customer, StartRequest{Gateway: "fakepay"})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.svc.Complete(ctx, res.PaymentID, CallbackSuccess); err != nil {
				t.Errorf("Complete: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(h.subs.subs) != 2 {
		t.Errorf("subscriptions = %d, want 2", len(h.subs.subs))
	}
}

func TestCompleteCancelled(t *testing.T) {
	h := newHarness(netflix)
	ctx := context.Background()
	res, _ := h.svc.Start(ctx, customer, StartRequest{Gateway: "fakepay"})

	order, err := h.svc.Complete(ctx, res.PaymentID, CallbackCancel)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if order.Status != models.OrderCancelled {
		t.Errorf("status = %s", order.Status)
	}
	if h.gateway.executions != 0 {
		t.Error("cancelled payment executed")
	}
	if rec, _ := h.payments.Get(ctx, res.PaymentID); rec.Status != payment.StatusCancelled {
		t.Errorf("payment status = %s", rec.Status)
	}
}

func TestCompleteRecoversThroughQuery(t *testing.T) {
	h := newHarness(netflix)
	ctx := context.Background()
	res, _ := h.svc.Start(ctx, customer, StartRequest{Gateway: "fakepay"})
	h.gateway.executeErr = errors.New("read: connection reset")

	order, err := h.svc.Complete(ctx, res.PaymentID, CallbackSuccess)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if order.Status != models.OrderPaid {
		t.Errorf("status = %s", order.Status)
	}
}

func TestCompleteDeclined(t *testing.T) {
	h := newHarness(netflix)
	ctx := context.Background()
	res, _ := h.svc.Start(ctx, customer, StartRequest{Gateway: "fakepay"})
	h.gateway.result = payment.Result{Status: payment.StatusFailed}

	order, err := h.svc.Complete(ctx, res.PaymentID, CallbackSuccess)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if order.Status != models.OrderFailed || len(h.subs.subs) != 0 {
		t.Errorf("status = %s, subs = %d", order.Status, len(h.subs.subs))
	}
}

func TestCompleteLeavesProcessingPaymentPending(t *testing.T) {
	h := newHarness(netflix)
	ctx := context.Background()
	res, _ := h.svc.Start(ctx, customer, StartRequest{Gateway: "fakepay"})
	h.gateway.result = payment.Result{Status: payment.StatusInitiated}

	order, err := h.svc.Complete(ctx, res.PaymentID, CallbackSuccess)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if order.Status != models.OrderPending {
		t.Fatalf("status = %s", order.Status)
	}

	h.gateway.result = payment.Result{TrxID: "TRX9", Status: payment.StatusCompleted}
	if order, _ = h.svc.Complete(ctx, res.PaymentID, CallbackSuccess); order.Status != models.OrderPaid {
		t.Errorf("after settlement status = %s", order.Status)
	}
}

func TestCompleteUnknownPayment(t *testing.T) {
	h := newHarness(netflix)
	if _, err := h.svc.Complete(context.Background(), "nope", CallbackSuccess); !errors.Is(err, ErrUnknownPayment) {
		t.Fatalf("err = %v", err)
	}
	if _, err := h.svc.Payment(context.Background(), "nope"); !errors.Is(err, ErrUnknownPayment) {
		t.Fatalf("Payment err = %v", err)
	}
}

func TestGrantPendingAndRetry(t *testing.T) {
	h := newHarness(netflix)
	h.grants.seats["netflix"] = 1
	ctx := context.Background()
	res, _ := h.svc.Start(ctx, customer, StartRequest{Gateway: "fakepay"})

	order, err := h.svc.Complete(ctx, res.PaymentID, CallbackSuccess)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if order.Status != models.OrderPaid {
		t.Fatalf("status = %s", order.Status)
	}
	if pending := order.PendingGrants(); len(pending) != 1 || pending[0] != 1 {
		t.Fatalf("pending = %v", pending)
	}
	if len(h.auditor.entries) != 1 {
		t.Errorf("audit entries = %d", len(h.auditor.entries))
	}
	if len(h.subs.subs) != 1 {
		t.Errorf("subscriptions = %d", len(h.subs.subs))
	}

	h.grants.seats["netflix"] = 1
	order, err = h.svc.RetryGrants(ctx, order.ID)
	if err != nil {
		t.Fatalf("RetryGrants: %v", err)
	}
	if len(order.PendingGrants()) != 0 || len(h.subs.subs) != 2 {
		t.Errorf("after retry pending=%v subs=%d", order.PendingGrants(), len(h.subs.subs))
	}
	stored, _ := h.orders.Get(ctx, order.ID)
	if stored.Items[1].GrantStatus != models.GrantGranted {
		t.Errorf("stored grant = %s", stored.Items[1].GrantStatus)
	}
}

func TestSubscriptionWriteFailureFreesSeat(t *testing.T) {
	h := newHarness(netflix)
	h.subs.err = errors.New("scylla timeout")
	ctx := context.Background()
	res, _ := h.svc.Start(ctx, customer, StartRequest{Gateway: "fakepay"})

	order, err := h.svc.Complete(ctx, res.PaymentID, CallbackSuccess)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if order.Status != models.OrderPaid {
		t.Fatalf("status = %s", order.Status)
	}
	if pending := order.PendingGrants(); len(pending) != 2 {
		t.Fatalf("pending = %v", pending)
	}
	for _, item := range order.Items {
		if item.ToolID != nil || item.ExpireDate != nil {
			t.Errorf("item kept a seat: %+v", item)
		}
	}
	if len(h.grants.held) != 0 || h.grants.seats["netflix"] != 5 {
		t.Errorf("seats held=%d free=%d", len(h.grants.held), h.grants.seats["netflix"])
	}
	if len(h.auditor.entries) != 2 {
		t.Errorf("audit entries = %d", len(h.auditor.entries))
	}

	h.subs.err = nil
	order, err = h.svc.RetryGrants(ctx, order.ID)
	if err != nil {
		t.Fatalf("RetryGrants: %v", err)
	}
	if len(order.PendingGrants()) != 0 || len(h.subs.subs) != 2 || len(h.grants.held) != 2 {
		t.Errorf("after retry pending=%v subs=%d held=%d", order.PendingGrants(), len(h.subs.subs), len(h.grants.held))
	}
}

func TestCompleteKeepsPaymentLock(t *testing.T) {
	h := newHarness(netflix)
	ctx := context.Background()
	res, _ := h.svc.Start(ctx, customer, StartRequest{Gateway: "fakepay"})

	if _, err := h.svc.Complete(ctx, res.PaymentID, CallbackSuccess); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	first, ok := h.svc.locks.Load(res.PaymentID)
	if !ok {
		t.Fatal("payment lock dropped after Complete")
	}
	if _, err := h.svc.Complete(ctx, res.PaymentID, CallbackSuccess); err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if second, _ := h.svc.locks.Load(res.PaymentID); second != first {
		t.Error("second Complete used a different mutex")
	}
}

func TestRetryGrantsRequiresPaid(t *testing.T) {
	h := newHarness(netflix)
	res, _ := h.svc.Start(context.Background(), customer, StartRequest{Gateway: "fakepay"})
	if _, err := h.svc.RetryGrants(context.Background(), res.Order.ID); !errors.Is(err, ErrOrderNotPaid) {
		t.Fatalf("err = %v", err)
	}
}

func TestExpandItems(t *testing.T) {
	items := ExpandItems([]models.CartItem{
		{ProductID: "a", Category: "Netflix", Quantity: 3, Month: 1},
		{ProductID: "b", Category: "Spotify", Quantity: 1, Month: 6},
	})
	if len(items) != 4 {
		t.Fatalf("len = %d", len(items))
	}
	if items[0].Category != "netflix" || items[3].ProductID != "b" || items[3].Month != 6 {
		t.Errorf("items = %+v", items)
	}
}
