package toolgrant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"subscription_live/internal/models"
	"subscription_live/internal/secure"
)

var (
	ErrInvalidInput = errors.New("invalid tool")
	ErrForbidden    = errors.New("subscription does not belong to user")
	ErrInactive     = errors.New("subscription is not active")
	ErrNoSeat       = errors.New("subscription has no tool assigned yet")
)

// Subscriptions is the part of the subscription store needed to resolve credentials.
type Subscriptions interface {
	Get(ctx context.Context, id gocql.UUID) (*models.Subscription, error)
}

// Service manages the tool inventory and hands out decrypted credentials.
type Service struct {
	store  Store
	subs   Subscriptions
	cipher *secure.Cipher
	now    func() time.Time
}

func NewService(store Store, subs Subscriptions, cipher *secure.Cipher) *Service {
	return &Service{store: store, subs: subs, cipher: cipher, now: time.Now}
}

type ToolInput struct {
	Category   string `json:"category" binding:"required"`
	Name       string `json:"name" binding:"required"`
	LoginEmail string `json:"login_email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	MaxUsers   int    `json:"max_users"`
}

func (s *Service) Create(ctx context.Context, in ToolInput) (*models.Tool, error) {
	if strings.TrimSpace(in.Category) == "" || strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: category and name are required", ErrInvalidInput)
	}
	if in.MaxUsers < 0 {
		return nil, fmt.Errorf("%w: max_users must not be negative", ErrInvalidInput)
	}

	secret, err := s.cipher.Encrypt(in.Password)
	if err != nil {
		return nil, fmt.Errorf("encrypt tool secret: %w", err)
	}

	now := s.now()
	t := models.Tool{
		ID:         gocql.TimeUUID(),
		Category:   strings.ToLower(strings.TrimSpace(in.Category)),
		Name:       in.Name,
		LoginEmail: in.LoginEmail,
		Secret:     secret,
		MaxUsers:   in.MaxUsers,
		Users:      []string{},
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	log.Printf("✅ Tool created: %s (%s)", t.Name, t.Category)
	return &t, nil
}

func (s *Service) List(ctx context.Context, category string) ([]models.Tool, error) {
	return s.store.List(ctx, strings.ToLower(category))
}

type ToolUpdate struct {
	Name       *string `json:"name"`
	LoginEmail *string `json:"login_email"`
	Password   *string `json:"password"`
	MaxUsers   *int    `json:"max_users"`
	IsActive   *bool   `json:"is_active"`
}

func (s *Service) Update(ctx context.Context, id gocql.UUID, in ToolUpdate) (*models.Tool, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		t.Name = *in.Name
	}
	if in.LoginEmail != nil {
		t.LoginEmail = *in.LoginEmail
	}
	if in.Password != nil {
		if t.Secret, err = s.cipher.Encrypt(*in.Password); err != nil {
			return nil, fmt.Errorf("encrypt tool secret: %w", err)
		}
	}
	if in.MaxUsers != nil {
		if *in.MaxUsers < 0 {
			return nil, fmt.Errorf("%w: max_users must not be negative", ErrInvalidInput)
		}
		t.MaxUsers = *in.MaxUsers
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
	t.UpdatedAt = s.now()

	if err := s.store.Update(ctx, *t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Delete(ctx context.Context, id gocql.UUID) error {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if len(t.Users) > 0 {
		return fmt.Errorf("%w: tool still has %d active seats", ErrInvalidInput, len(t.Users))
	}
	return s.store.Delete(ctx, id)
}

// Credentials returns the decrypted login of the tool behind one of the user's
// active subscriptions.
func (s *Service) Credentials(ctx context.Context, userID string, subscriptionID gocql.UUID) (*models.ToolCredentials, error) {
	sub, err := s.subs.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, ErrForbidden
	}
	if sub.Status != models.SubscriptionActive || !sub.ExpireDate.After(s.now()) {
		return nil, ErrInactive
	}
	if sub.ToolID == nil {
		return nil, ErrNoSeat
	}

	toolID, err := gocql.ParseUUID(*sub.ToolID)
	if err != nil {
		return nil, fmt.Errorf("subscription %s has a bad tool id: %w", sub.ID, err)
	}
	t, err := s.store.Get(ctx, toolID)
	if err != nil {
		return nil, err
	}
	password, err := s.cipher.Decrypt(t.Secret)
	if err != nil {
		log.Printf("❌ Failed to decrypt secret of tool %s: %v", t.ID, err)
		return nil, fmt.Errorf("decrypt tool secret: %w", err)
	}

	return &models.ToolCredentials{
		ToolID:     t.ID,
		Name:       t.Name,
		LoginEmail: t.LoginEmail,
		Password:   password,
		ExpireDate: sub.ExpireDate,
	}, nil
}
