package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/gocql/gocql"

	"subscription_live/internal/models"
)

const orderColumns = `order_id, user_id, email, items, subtotal, discount, total, coupon_code, gateway, payment_id, trx_id, status, created_at, updated_at`

// Orders keeps order items as a JSON document so every unit's grant can be
// rewritten in one statement.
type Orders struct {
	session *gocql.Session
}

func NewOrders(session *gocql.Session) *Orders {
	return &Orders{session: session}
}

func (s *Orders) Create(ctx context.Context, o models.Order) error {
	items, err := encodeItems(o.Items)
	if err != nil {
		return err
	}
	return s.session.Query(`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.Email, items, o.Subtotal, o.Discount, o.Total, o.CouponCode,
		o.Gateway, o.PaymentID, o.TrxID, o.Status, o.CreatedAt, o.UpdatedAt,
	).WithContext(ctx).Exec()
}

func (s *Orders) Get(ctx context.Context, id gocql.UUID) (*models.Order, error) {
	var o models.Order
	var items string
	err := s.session.Query(`SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, id).
		WithContext(ctx).Scan(orderFields(&o, &items)...)
	if err != nil {
		return nil, notFound(err)
	}
	if o.Items, err = decodeItems(items); err != nil {
		return nil, fmt.Errorf("order %s: %w", id, err)
	}
	return &o, nil
}

func (s *Orders) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	return s.list(s.session.Query(`SELECT `+orderColumns+` FROM orders WHERE user_id = ? ALLOW FILTERING`, userID).WithContext(ctx), 0)
}

// ListAll returns the newest orders, only those in status when it is set.
func (s *Orders) ListAll(ctx context.Context, status string, limit int) ([]models.Order, error) {
	if status != "" {
		return s.list(s.session.Query(`SELECT `+orderColumns+` FROM orders WHERE status = ? ALLOW FILTERING`, status).WithContext(ctx), limit)
	}
	return s.list(s.session.Query(`SELECT `+orderColumns+` FROM orders`).WithContext(ctx), limit)
}

// list returns the newest orders first, at most limit when limit > 0.
func (s *Orders) list(q *gocql.Query, limit int) ([]models.Order, error) {
	iter := q.Iter()

	var orders []models.Order
	var o models.Order
	var items string
	for iter.Scan(orderFields(&o, &items)...) {
		decoded, err := decodeItems(items)
		if err != nil {
			iter.Close()
			return nil, fmt.Errorf("order %s: %w", o.ID, err)
		}
		o.Items = decoded
		orders = append(orders, o)
		o = models.Order{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *Orders) SetPayment(ctx context.Context, id gocql.UUID, paymentID string) error {
	return s.session.Query(`UPDATE orders SET payment_id = ?, updated_at = ? WHERE order_id = ?`,
		paymentID, time.Now(), id).WithContext(ctx).Exec()
}

// Transition moves the order from one status to another with a lightweight
// transaction. It reports false when the order was no longer in status from.
func (s *Orders) Transition(ctx context.Context, id gocql.UUID, from, to, trxID string) (bool, error) {
	var q *gocql.Query
	if trxID != "" {
		q = s.session.Query(`UPDATE orders SET status = ?, trx_id = ?, updated_at = ? WHERE order_id = ? IF status = ?`,
			to, trxID, time.Now(), id, from)
	} else {
		q = s.session.Query(`UPDATE orders SET status = ?, updated_at = ? WHERE order_id = ? IF status = ?`,
			to, time.Now(), id, from)
	}
	applied, err := q.WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *Orders) UpdateItems(ctx context.Context, id gocql.UUID, items []models.OrderItem) error {
	encoded, err := encodeItems(items)
	if err != nil {
		return err
	}
	return s.session.Query(`UPDATE orders SET items = ?, updated_at = ? WHERE order_id = ?`,
		encoded, time.Now(), id).WithContext(ctx).Exec()
}

func orderFields(o *models.Order, items *string) []interface{} {
	return []interface{}{
		&o.ID, &o.UserID, &o.Email, items, &o.Subtotal, &o.Discount, &o.Total, &o.CouponCode,
		&o.Gateway, &o.PaymentID, &o.TrxID, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	}
}

func encodeItems(items []models.OrderItem) (string, error) {
	if items == nil {
		items = []models.OrderItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode items: %w", err)
	}
	return string(b), nil
}

func decodeItems(raw string) ([]models.OrderItem, error) {
	if raw == "" {
		return nil, nil
	}
	var items []models.OrderItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return items, nil
}
