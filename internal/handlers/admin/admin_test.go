package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"

	"subscription_live/internal/account"
	"subscription_live/internal/audit"
	"subscription_live/internal/coupon"
	"subscription_live/internal/models"
	"subscription_live/internal/order"
	"subscription_live/internal/subscription"
	"subscription_live/internal/toolgrant"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
	filter  audit.Filter
}

func (m *memAudit) Insert(_ context.Context, e models.AuditLog) error {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func (m *memAudit) List(_ context.Context, f audit.Filter) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter = f
	return m.entries, nil
}

type fakeCoupons struct{ created coupon.CreateInput }

func (f *fakeCoupons) Create(_ context.Context, in coupon.CreateInput, _ string) (*models.Coupon, error) {
	if in.Code == "TAKEN" {
		return nil, coupon.ErrCodeTaken
	}
	f.created = in
	return &models.Coupon{ID: gocql.TimeUUID(), Code: in.Code}, nil
}
func (f *fakeCoupons) List(context.Context) ([]models.Coupon, error) { return nil, nil }
func (f *fakeCoupons) Update(_ context.Context, id gocql.UUID, in coupon.UpdateInput) (*models.Coupon, error) {
	return &models.Coupon{ID: id, IsActive: in.IsActive != nil && *in.IsActive}, nil
}
func (f *fakeCoupons) Delete(context.Context, gocql.UUID) error { return models.ErrNotFound }

type fakeTools struct{}

func (fakeTools) Create(_ context.Context, in toolgrant.ToolInput) (*models.Tool, error) {
	return &models.Tool{ID: gocql.TimeUUID(), Category: in.Category, Name: in.Name}, nil
}
func (fakeTools) List(_ context.Context, category string) ([]models.Tool, error) {
	return []models.Tool{{Category: category}}, nil
}
func (fakeTools) Update(_ context.Context, id gocql.UUID, _ toolgrant.ToolUpdate) (*models.Tool, error) {
	return &models.Tool{ID: id}, nil
}
func (fakeTools) Delete(context.Context, gocql.UUID) error { return nil }

type fakeOrders struct {
	order  models.Order
	status string
	limit  int
}

func (f *fakeOrders) List(_ context.Context, status string, limit int) ([]models.Order, error) {
	f.status, f.limit = status, limit
	return []models.Order{f.order}, nil
}
func (f *fakeOrders) Get(context.Context, gocql.UUID) (*models.Order, error) {
	return &f.order, nil
}
func (f *fakeOrders) Refund(_ context.Context, _ gocql.UUID, _ string) (*models.Order, error) {
	if f.order.Status != models.OrderPaid {
		return nil, order.ErrNotRefundable
	}
	o := f.order
	o.Status = models.OrderRefunded
	return &o, nil
}
func (f *fakeOrders) RetryGrants(context.Context, gocql.UUID) (*models.Order, error) {
	return &f.order, nil
}

type fakeSubs struct{ sweptAt time.Time }

func (f *fakeSubs) List(context.Context, string) ([]models.Subscription, error) { return nil, nil }
func (f *fakeSubs) Sweep(_ context.Context, now time.Time) (subscription.SweepResult, error) {
	f.sweptAt = now
	return subscription.SweepResult{Expired: 2}, nil
}

type fakeUsers struct{}

func (fakeUsers) ListUsers(context.Context, int) ([]models.User, error) { return nil, nil }
func (fakeUsers) SetRole(_ context.Context, id, role string) (*models.User, error) {
	if role != models.RoleAdmin && role != models.RoleCustomer {
		return nil, account.ErrInvalidRole
	}
	return &models.User{ID: id, Role: role}, nil
}

type harness struct {
	r      *gin.Engine
	store  *memAudit
	logger *audit.Logger
	orders *fakeOrders
	subs   *fakeSubs
}

func newHarness() *harness {
	h := &harness{
		store:  &memAudit{},
		orders: &fakeOrders{order: models.Order{ID: gocql.TimeUUID(), Status: models.OrderPaid, Items: []models.OrderItem{{GrantStatus: models.GrantPending}}}},
		subs:   &fakeSubs{},
	}
	h.logger = audit.NewLogger(h.store)
	a := NewHandler(Deps{
		Coupons:       &fakeCoupons{},
		Tools:         fakeTools{},
		Orders:        h.orders,
		Grants:        h.orders,
		Subscriptions: h.subs,
		Users:         fakeUsers{},
		Audit:         h.logger,
	})
	a.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	r := gin.New()
	g := r.Group("/admin", func(c *gin.Context) {
		c.Set("user_id", "admin-1")
		c.Set("email", "admin@example.com")
	})
	g.POST("/coupons", h.logger.Action(audit.ActionCouponCreate, audit.ResourceCoupon), a.CreateCoupon)
	g.GET("/coupons", a.ListCoupons)
	g.PUT("/coupons/:id", h.logger.Action(audit.ActionCouponUpdate, audit.ResourceCoupon), a.UpdateCoupon)
	g.DELETE("/coupons/:id", h.logger.Action(audit.ActionCouponDelete, audit.ResourceCoupon), a.DeleteCoupon)
	g.POST("/tools", h.logger.Action(audit.ActionToolCreate, audit.ResourceTool), a.CreateTool)
	g.GET("/tools", a.ListTools)
	g.GET("/orders", a.ListOrders)
	g.POST("/orders/:id/refund", h.logger.Action(audit.ActionOrderRefund, audit.ResourceOrder), a.RefundOrder)
	g.POST("/orders/:id/grants/retry", h.logger.Action(audit.ActionGrantRetry, audit.ResourceOrder), a.RetryGrants)
	g.GET("/subscriptions", a.ListSubscriptions)
	g.POST("/subscriptions/sweep", a.SweepSubscriptions)
	g.GET("/users", a.ListUsers)
	g.PUT("/users/:id/role", h.logger.Action(audit.ActionRoleAssign, audit.ResourceUser), a.SetUserRole)
	g.GET("/audit", a.GetAuditLogs)
	h.r = r
	return h
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.r.ServeHTTP(w, req)
	return w
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness()
	id := gocql.TimeUUID().String()
	orderID := h.orders.order.ID.String()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"create coupon", http.MethodPost, "/admin/coupons", `{"code":"SAVE10","type":"percentage","value":10,"expires_at":"2027-01-01T00:00:00Z"}`, http.StatusCreated},
		{"create coupon missing expiry", http.MethodPost, "/admin/coupons", `{"code":"SAVE10","type":"percentage","value":10}`, http.StatusBadRequest},
		{"create coupon taken", http.MethodPost, "/admin/coupons", `{"code":"TAKEN","type":"fixed","value":10,"expires_at":"2027-01-01T00:00:00Z"}`, http.StatusConflict},
		{"list coupons", http.MethodGet, "/admin/coupons", "", http.StatusOK},
		{"update coupon", http.MethodPut, "/admin/coupons/" + id, `{"is_active":false}`, http.StatusOK},
		{"update coupon bad id", http.MethodPut, "/admin/coupons/nope", `{}`, http.StatusBadRequest},
		{"delete missing coupon", http.MethodDelete, "/admin/coupons/" + id, "", http.StatusNotFound},
		{"create tool", http.MethodPost, "/admin/tools", `{"category":"chatgpt","name":"Team 1","login_email":"t@x.io","password":"pw"}`, http.StatusCreated},
		{"create tool missing password", http.MethodPost, "/admin/tools", `{"category":"chatgpt","name":"Team 1","login_email":"t@x.io"}`, http.StatusBadRequest},
		{"list tools", http.MethodGet, "/admin/tools?category=chatgpt", "", http.StatusOK},
		{"list orders", http.MethodGet, "/admin/orders?status=paid&limit=9999", "", http.StatusOK},
		{"retry grants", http.MethodPost, "/admin/orders/" + orderID + "/grants/retry", "", http.StatusOK},
		{"refund", http.MethodPost, "/admin/orders/" + orderID + "/refund", `{"reason":"customer request"}`, http.StatusOK},
		{"list subscriptions", http.MethodGet, "/admin/subscriptions?status=active", "", http.StatusOK},
		{"sweep", http.MethodPost, "/admin/subscriptions/sweep", "", http.StatusOK},
		{"list users", http.MethodGet, "/admin/users", "", http.StatusOK},
		{"promote", http.MethodPut, "/admin/users/u-7/role", `{"role":"admin"}`, http.StatusOK},
		{"unknown role", http.MethodPut, "/admin/users/u-7/role", `{"role":"owner"}`, http.StatusBadRequest},
		{"own role", http.MethodPut, "/admin/users/admin-1/role", `{"role":"customer"}`, http.StatusForbidden},
		{"audit bad success", http.MethodGet, "/admin/audit?success=maybe", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	if h.orders.status != models.OrderPaid || h.orders.limit != 500 {
		t.Errorf("order listing got status %q limit %d", h.orders.status, h.orders.limit)
	}
	if !h.subs.sweptAt.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("sweep ran at %v", h.subs.sweptAt)
	}
}

func TestRetryGrantsReportsPending(t *testing.T) {
	h := newHarness()
	w := h.do(http.MethodPost, "/admin/orders/"+h.orders.order.ID.String()+"/grants/retry", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"pending":1`) {
		t.Fatalf("retry: %d %s", w.Code, w.Body.String())
	}
}

func TestRefundNotRefundable(t *testing.T) {
	h := newHarness()
	h.orders.order.Status = models.OrderPending
	if w := h.do(http.MethodPost, "/admin/orders/"+h.orders.order.ID.String()+"/refund", `{}`); w.Code != http.StatusConflict {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAdminActionsAreAudited(t *testing.T) {
	h := newHarness()
	h.do(http.MethodPost, "/admin/coupons", `{"code":"SAVE10","type":"percentage","value":10,"expires_at":"2027-01-01T00:00:00Z"}`)
	h.do(http.MethodPut, "/admin/users/u-7/role", `{"role":"owner"}`)
	h.do(http.MethodPost, "/admin/orders/"+h.orders.order.ID.String()+"/refund", `{"reason":"duplicate"}`)
	h.logger.Wait()

	h.store.mu.Lock()
	entries := append([]models.AuditLog(nil), h.store.entries...)
	h.store.mu.Unlock()
	if len(entries) != 3 {
		t.Fatalf("audited %d actions, want 3", len(entries))
	}

	byAction := map[string]models.AuditLog{}
	for _, e := range entries {
		byAction[e.Action] = e
	}
	created := byAction[audit.ActionCouponCreate]
	if !created.Success || created.ResourceID == "" || created.UserID != "admin-1" {
		t.Errorf("coupon create entry = %+v", created)
	}
	role := byAction[audit.ActionRoleAssign]
	if role.Success || role.ResourceID != "u-7" || role.ErrorMsg == "" {
		t.Errorf("failed role entry = %+v", role)
	}
	refund := byAction[audit.ActionOrderRefund]
	if !refund.Success || refund.OldValue != models.OrderPaid || !strings.Contains(refund.NewValue, "duplicate") {
		t.Errorf("refund entry = %+v", refund)
	}
}

func TestGetAuditLogsFilters(t *testing.T) {
	h := newHarness()
	w := h.do(http.MethodGet, "/admin/audit?user_id=admin-1&action=coupon.create&success=false&limit=20", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	f := h.store.filter
	if f.UserID != "admin-1" || f.Action != "coupon.create" || f.Limit != 20 || f.Success == nil || *f.Success {
		t.Errorf("filter = %+v", f)
	}
}
