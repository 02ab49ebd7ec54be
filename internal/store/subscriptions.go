package store

import (
	"context"
	"sort"
	"time"

	"github.com/gocql/gocql"

	"subscription_live/internal/models"
)

const subscriptionColumns = `subscription_id, user_id, email, order_id, item_index, product_id, product_name, category,
	tool_id, start_date, expire_date, status, reminded`

type Subscriptions struct {
	session *gocql.Session
}

func NewSubscriptions(session *gocql.Session) *Subscriptions {
	return &Subscriptions{session: session}
}

func (s *Subscriptions) Create(ctx context.Context, sub models.Subscription) error {
	return s.session.Query(`INSERT INTO subscriptions (`+subscriptionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.UserID, sub.Email, sub.OrderID, sub.ItemIndex, sub.ProductID, sub.ProductName, sub.Category,
		sub.ToolID, sub.StartDate, sub.ExpireDate, sub.Status, sub.Reminded,
	).WithContext(ctx).Exec()
}

func (s *Subscriptions) Get(ctx context.Context, id gocql.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.session.Query(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE subscription_id = ?`, id).
		WithContext(ctx).Scan(subscriptionFields(&sub)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *Subscriptions) ListByUser(ctx context.Context, userID string) ([]models.Subscription, error) {
	return s.list(s.session.Query(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = ? ALLOW FILTERING`, userID).WithContext(ctx))
}

// ListAll returns every subscription, or only those in status when it is set.
func (s *Subscriptions) ListAll(ctx context.Context, status string) ([]models.Subscription, error) {
	if status == "" {
		return s.list(s.session.Query(`SELECT ` + subscriptionColumns + ` FROM subscriptions`).WithContext(ctx))
	}
	return s.list(s.session.Query(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE status = ? ALLOW FILTERING`, status).WithContext(ctx))
}

func (s *Subscriptions) ListByOrder(ctx context.Context, orderID gocql.UUID) ([]models.Subscription, error) {
	return s.list(s.session.Query(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE order_id = ? ALLOW FILTERING`, orderID).WithContext(ctx))
}

func (s *Subscriptions) ListActiveExpiringBefore(ctx context.Context, t time.Time) ([]models.Subscription, error) {
	return s.list(s.session.Query(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE status = ? AND expire_date < ? ALLOW FILTERING`,
		models.SubscriptionActive, t).WithContext(ctx))
}

func (s *Subscriptions) UpdateStatus(ctx context.Context, id gocql.UUID, status string) error {
	return s.session.Query(`UPDATE subscriptions SET status = ? WHERE subscription_id = ?`, status, id).WithContext(ctx).Exec()
}

func (s *Subscriptions) MarkReminded(ctx context.Context, id gocql.UUID) error {
	return s.session.Query(`UPDATE subscriptions SET reminded = true WHERE subscription_id = ?`, id).WithContext(ctx).Exec()
}

// list returns subscriptions ending soonest first.
func (s *Subscriptions) list(q *gocql.Query) ([]models.Subscription, error) {
	iter := q.Iter()

	var subs []models.Subscription
	var sub models.Subscription
	for iter.Scan(subscriptionFields(&sub)...) {
		subs = append(subs, sub)
		sub = models.Subscription{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ExpireDate.Before(subs[j].ExpireDate) })
	return subs, nil
}

func subscriptionFields(sub *models.Subscription) []interface{} {
	return []interface{}{
		&sub.ID, &sub.UserID, &sub.Email, &sub.OrderID, &sub.ItemIndex, &sub.ProductID, &sub.ProductName, &sub.Category,
		&sub.ToolID, &sub.StartDate, &sub.ExpireDate, &sub.Status, &sub.Reminded,
	}
}
