package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"subscription_live/internal/models"
	"subscription_live/internal/payment"
)

var (
	ErrNotFound      = models.ErrNotFound
	ErrNotRefundable = errors.New("only paid orders can be refunded")
	ErrRefundFailed  = errors.New("gateway did not complete the refund")
)

type Store interface {
	Get(ctx context.Context, id gocql.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
	ListAll(ctx context.Context, status string, limit int) ([]models.Order, error)
	Transition(ctx context.Context, id gocql.UUID, from, to, trxID string) (bool, error)
	UpdateItems(ctx context.Context, id gocql.UUID, items []models.OrderItem) error
}

type Payments interface {
	UpdateStatus(ctx context.Context, paymentID, status, trxID string) error
}

// Subscriptions ends the subscriptions opened by an order and frees their seats.
type Subscriptions interface {
	CancelOrder(ctx context.Context, order models.Order) error
}

type Notifier interface {
	OrderRefunded(ctx context.Context, order models.Order, reason string) error
}

type Service struct {
	store    Store
	payments Payments
	gateways *payment.Registry
	subs     Subscriptions
	notifier Notifier
}

func NewService(store Store, payments Payments, gateways *payment.Registry, subs Subscriptions, notifier Notifier) *Service {
	return &Service{store: store, payments: payments, gateways: gateways, subs: subs, notifier: notifier}
}

func (s *Service) ListMine(ctx context.Context, userID string) ([]models.Order, error) {
	return s.store.ListByUser(ctx, userID)
}

// GetMine returns the order only when it belongs to userID.
func (s *Service) GetMine(ctx context.Context, userID string, id gocql.UUID) (*models.Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, id gocql.UUID) (*models.Order, error) {
	return s.store.Get(ctx, id)
}

// List returns recent orders, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListAll(ctx, strings.ToLower(status), limit)
}

// Refund returns the money through the order's gateway, revokes every grant and
// ends the order's subscriptions.
func (s *Service) Refund(ctx context.Context, id gocql.UUID, reason string) (*models.Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != models.OrderPaid {
		return nil, ErrNotRefundable
	}

	if o.Total > 0 && o.PaymentID != "" {
		gw, err := s.gateways.Get(o.Gateway)
		if err != nil {
			return nil, err
		}
		res, err := gw.Refund(ctx, payment.RefundRequest{
			PaymentID: o.PaymentID,
			TrxID:     o.TrxID,
			Amount:    o.Total,
			Reason:    reason,
		})
		if err != nil {
			return nil, fmt.Errorf("refund order %s: %w", o.ID, err)
		}
		if res.Status != payment.StatusRefunded {
			log.Printf("⚠️ Refund %s for order %s reported %q", res.RefundID, o.ID, res.Status)
			return nil, fmt.Errorf("refund order %s: %w (status %s)", o.ID, ErrRefundFailed, res.Status)
		}
		log.Printf("💰 Refund %s issued for order %s (%.2f)", res.RefundID, o.ID, res.Amount)
	}

	applied, err := s.store.Transition(ctx, o.ID, models.OrderPaid, models.OrderRefunded, o.TrxID)
	if err != nil {
		return nil, fmt.Errorf("mark order refunded: %w", err)
	}
	if !applied {
		return s.store.Get(ctx, o.ID)
	}
	o.Status = models.OrderRefunded

	if o.PaymentID != "" {
		if err := s.payments.UpdateStatus(ctx, o.PaymentID, payment.StatusRefunded, o.TrxID); err != nil {
			log.Printf("❌ Payment %s not marked refunded: %v", o.PaymentID, err)
		}
	}

	if err := s.subs.CancelOrder(ctx, *o); err != nil {
		log.Printf("❌ Subscriptions of order %s not cancelled: %v", o.ID, err)
	}
	for i := range o.Items {
		o.Items[i].GrantStatus = models.GrantRevoked
	}
	if err := s.store.UpdateItems(ctx, o.ID, o.Items); err != nil {
		log.Printf("❌ Items of order %s not revoked: %v", o.ID, err)
	}

	if s.notifier != nil {
		go func(o models.Order) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.notifier.OrderRefunded(ctx, o, reason); err != nil {
				log.Printf("❌ Refund notice for order %s not sent: %v", o.ID, err)
			}
		}(*o)
	}
	return o, nil
}
