package store

import (
	"context"
	"sort"

	"github.com/gocql/gocql"

	"subscription_live/internal/models"
)

const couponColumns = `coupon_id, code, type, value, min_amount, max_discount, max_uses, used_count, max_uses_per_user,
	categories, product_ids, starts_at, expires_at, is_active, created_by, created_at, updated_at`

type Coupons struct {
	session *gocql.Session
}

func NewCoupons(session *gocql.Session) *Coupons {
	return &Coupons{session: session}
}

func (s *Coupons) Create(ctx context.Context, c models.Coupon) error {
	return s.session.Query(`INSERT INTO coupons (`+couponColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Code, c.Type, c.Value, c.MinAmount, c.MaxDiscount, c.MaxUses, c.UsedCount, c.MaxUsesPerUser,
		c.Categories, c.ProductIDs, c.StartsAt, c.ExpiresAt, c.IsActive, c.CreatedBy, c.CreatedAt, c.UpdatedAt,
	).WithContext(ctx).Exec()
}

func (s *Coupons) Get(ctx context.Context, id gocql.UUID) (*models.Coupon, error) {
	var c models.Coupon
	err := s.session.Query(`SELECT `+couponColumns+` FROM coupons WHERE coupon_id = ?`, id).
		WithContext(ctx).Scan(couponFields(&c)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Coupons) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := s.session.Query(`SELECT `+couponColumns+` FROM coupons WHERE code = ? ALLOW FILTERING`, code).
		WithContext(ctx).Scan(couponFields(&c)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Coupons) List(ctx context.Context) ([]models.Coupon, error) {
	iter := s.session.Query(`SELECT ` + couponColumns + ` FROM coupons`).WithContext(ctx).Iter()

	var coupons []models.Coupon
	var c models.Coupon
	for iter.Scan(couponFields(&c)...) {
		coupons = append(coupons, c)
		c = models.Coupon{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	sort.Slice(coupons, func(i, j int) bool { return coupons[i].CreatedAt.After(coupons[j].CreatedAt) })
	return coupons, nil
}

// Update writes the editable fields; used_count is only changed by IncrementUsage.
func (s *Coupons) Update(ctx context.Context, c models.Coupon) error {
	return s.session.Query(`UPDATE coupons SET is_active = ?, max_uses = ?, expires_at = ?, updated_at = ? WHERE coupon_id = ?`,
		c.IsActive, c.MaxUses, c.ExpiresAt, c.UpdatedAt, c.ID,
	).WithContext(ctx).Exec()
}

func (s *Coupons) Delete(ctx context.Context, id gocql.UUID) error {
	return s.session.Query(`DELETE FROM coupons WHERE coupon_id = ?`, id).WithContext(ctx).Exec()
}

func (s *Coupons) Codes(ctx context.Context) ([]string, error) {
	iter := s.session.Query(`SELECT code FROM coupons`).WithContext(ctx).Iter()
	var codes []string
	var code string
	for iter.Scan(&code) {
		codes = append(codes, code)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return codes, nil
}

func (s *Coupons) IncrementUsage(ctx context.Context, id gocql.UUID, expected int) (bool, error) {
	return s.session.Query(`UPDATE coupons SET used_count = ? WHERE coupon_id = ? IF used_count = ?`,
		expected+1, id, expected,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
}

func (s *Coupons) CountUserUsage(ctx context.Context, id gocql.UUID, userID string) (int, error) {
	var n int
	err := s.session.Query(`SELECT COUNT(*) FROM coupon_usage WHERE coupon_id = ? AND user_id = ?`, id, userID).
		WithContext(ctx).Scan(&n)
	return n, err
}

func (s *Coupons) RecordUsage(ctx context.Context, u models.CouponUsage) error {
	return s.session.Query(`INSERT INTO coupon_usage (coupon_id, user_id, order_id, usage_id, used_at) VALUES (?, ?, ?, ?, ?)`,
		u.CouponID, u.UserID, u.OrderID, u.ID, u.UsedAt,
	).WithContext(ctx).Exec()
}

func couponFields(c *models.Coupon) []interface{} {
	return []interface{}{
		&c.ID, &c.Code, &c.Type, &c.Value, &c.MinAmount, &c.MaxDiscount, &c.MaxUses, &c.UsedCount, &c.MaxUsesPerUser,
		&c.Categories, &c.ProductIDs, &c.StartsAt, &c.ExpiresAt, &c.IsActive, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	}
}
