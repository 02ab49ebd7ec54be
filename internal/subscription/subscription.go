package subscription

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gocql/gocql"

	"subscription_live/internal/models"
)

// Store persists subscriptions.
type Store interface {
	Create(ctx context.Context, s models.Subscription) error
	Get(ctx context.Context, id gocql.UUID) (*models.Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]models.Subscription, error)
	ListAll(ctx context.Context, status string) ([]models.Subscription, error)
	ListByOrder(ctx context.Context, orderID gocql.UUID) ([]models.Subscription, error)
	ListActiveExpiringBefore(ctx context.Context, t time.Time) ([]models.Subscription, error)
	UpdateStatus(ctx context.Context, id gocql.UUID, status string) error
	MarkReminded(ctx context.Context, id gocql.UUID) error
}

// Releaser frees the tool seat held by a subscription.
type Releaser interface {
	Release(ctx context.Context, toolID, holder string) error
}

// Notifier emails subscribers about upcoming expiries.
type Notifier interface {
	ExpiryReminder(ctx context.Context, sub models.Subscription) error
}

type Service struct {
	store    Store
	releaser Releaser
	notifier Notifier
	window   time.Duration
}

// NewService builds the service. window is how far ahead reminders are sent;
// notifier may be nil.
func NewService(store Store, releaser Releaser, notifier Notifier, window time.Duration) *Service {
	return &Service{store: store, releaser: releaser, notifier: notifier, window: window}
}

// ForItem builds the subscription created for a paid order item.
func ForItem(order models.Order, index int, start time.Time) models.Subscription {
	item := order.Items[index]
	return models.Subscription{
		ID:          gocql.TimeUUID(),
		UserID:      order.UserID,
		Email:       order.Email,
		OrderID:     order.ID,
		ItemIndex:   index,
		ProductID:   item.ProductID,
		ProductName: item.Name,
		Category:    item.Category,
		ToolID:      item.ToolID,
		StartDate:   start,
		ExpireDate:  models.ExpireAfter(start, item.Month),
		Status:      models.SubscriptionActive,
	}
}

func (s *Service) Create(ctx context.Context, sub models.Subscription) error {
	return s.store.Create(ctx, sub)
}

func (s *Service) Get(ctx context.Context, id gocql.UUID) (*models.Subscription, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListMine(ctx context.Context, userID string) ([]models.Subscription, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) List(ctx context.Context, status string) ([]models.Subscription, error) {
	return s.store.ListAll(ctx, status)
}

// CancelOrder cancels every active subscription of an order and frees its seats.
func (s *Service) CancelOrder(ctx context.Context, order models.Order) error {
	subs, err := s.store.ListByOrder(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("list order subscriptions: %w", err)
	}
	for _, sub := range subs {
		if sub.Status != models.SubscriptionActive {
			continue
		}
		if err := s.end(ctx, sub, models.SubscriptionCancelled); err != nil {
			return err
		}
	}
	return nil
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Expired  int `json:"expired"`
	Reminded int `json:"reminded"`
}

// Sweep expires subscriptions past their end date, releasing their seats, and
// reminds subscribers whose end date falls within the reminder window.
func (s *Service) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult

	due, err := s.store.ListActiveExpiringBefore(ctx, now.Add(s.window))
	if err != nil {
		return res, fmt.Errorf("list expiring subscriptions: %w", err)
	}

	for _, sub := range due {
		if !sub.ExpireDate.After(now) {
			if err := s.end(ctx, sub, models.SubscriptionExpired); err != nil {
				log.Printf("❌ Failed to expire subscription %s: %v", sub.ID, err)
				continue
			}
			res.Expired++
			continue
		}

		if sub.Reminded || s.notifier == nil {
			continue
		}
		if err := s.notifier.ExpiryReminder(ctx, sub); err != nil {
			log.Printf("⚠️ Expiry reminder for %s not sent: %v", sub.ID, err)
			continue
		}
		if err := s.store.MarkReminded(ctx, sub.ID); err != nil {
			log.Printf("⚠️ Subscription %s reminded but not marked: %v", sub.ID, err)
		}
		res.Reminded++
	}

	if res.Expired > 0 || res.Reminded > 0 {
		log.Printf("✅ Subscription sweep: %d expired, %d reminded", res.Expired, res.Reminded)
	}
	return res, nil
}

func (s *Service) end(ctx context.Context, sub models.Subscription, status string) error {
	if sub.ToolID != nil && s.releaser != nil {
		if err := s.releaser.Release(ctx, *sub.ToolID, sub.Holder()); err != nil {
			return err
		}
	}
	return s.store.UpdateStatus(ctx, sub.ID, status)
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("⏰ Subscription sweeper started (every %s)", interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("⏰ Subscription sweeper stopped")
			return
		case now := <-ticker.C:
			if _, err := s.Sweep(ctx, now); err != nil {
				log.Printf("❌ Subscription sweep failed: %v", err)
			}
		}
	}
}
