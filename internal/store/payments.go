package store

import (
	"context"
	"time"

	"github.com/gocql/gocql"

	"subscription_live/internal/models"
)

type Payments struct {
	session *gocql.Session
}

func NewPayments(session *gocql.Session) *Payments {
	return &Payments{session: session}
}

func (s *Payments) Save(ctx context.Context, rec models.PaymentRecord) error {
	return s.session.Query(`INSERT INTO payments (payment_id, gateway, order_id, user_id, amount, currency, status, trx_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.PaymentID, rec.Gateway, rec.OrderID, rec.UserID, rec.Amount, rec.Currency,
		rec.Status, rec.TrxID, rec.CreatedAt, rec.UpdatedAt,
	).WithContext(ctx).Exec()
}

func (s *Payments) Get(ctx context.Context, paymentID string) (*models.PaymentRecord, error) {
	var rec models.PaymentRecord
	err := s.session.Query(`SELECT payment_id, gateway, order_id, user_id, amount, currency, status, trx_id, created_at, updated_at
		FROM payments WHERE payment_id = ?`, paymentID).WithContext(ctx).Scan(
		&rec.PaymentID, &rec.Gateway, &rec.OrderID, &rec.UserID, &rec.Amount, &rec.Currency,
		&rec.Status, &rec.TrxID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// UpdateStatus records the gateway outcome. An empty trxID keeps the stored one.
func (s *Payments) UpdateStatus(ctx context.Context, paymentID, status, trxID string) error {
	if trxID == "" {
		return s.session.Query(`UPDATE payments SET status = ?, updated_at = ? WHERE payment_id = ?`,
			status, time.Now(), paymentID).WithContext(ctx).Exec()
	}
	return s.session.Query(`UPDATE payments SET status = ?, trx_id = ?, updated_at = ? WHERE payment_id = ?`,
		status, trxID, time.Now(), paymentID).WithContext(ctx).Exec()
}
