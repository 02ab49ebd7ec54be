package coupon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/gocql/gocql"

	"subscription_live/internal/models"
)

var (
	ErrNotFound     = models.ErrNotFound
	ErrInvalid      = errors.New("coupon invalid")
	ErrCodeTaken    = errors.New("coupon code already exists")
	ErrExhausted    = errors.New("coupon usage limit reached")
	ErrInvalidInput = errors.New("invalid coupon")
)

// Store persists coupons and their redemptions.
type Store interface {
	Create(ctx context.Context, c models.Coupon) error
	Get(ctx context.Context, id gocql.UUID) (*models.Coupon, error)
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	List(ctx context.Context) ([]models.Coupon, error)
	Update(ctx context.Context, c models.Coupon) error
	Delete(ctx context.Context, id gocql.UUID) error
	Codes(ctx context.Context) ([]string, error)
	// IncrementUsage bumps used_count only if it still equals expected.
	IncrementUsage(ctx context.Context, id gocql.UUID, expected int) (bool, error)
	CountUserUsage(ctx context.Context, id gocql.UUID, userID string) (int, error)
	RecordUsage(ctx context.Context, u models.CouponUsage) error
}

type Service struct {
	store Store
	now   func() time.Time

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WarmFilter loads every known code into the bloom filter. Until it runs,
// every lookup goes to the store.
func (s *Service) WarmFilter(ctx context.Context) error {
	codes, err := s.store.Codes(ctx)
	if err != nil {
		return fmt.Errorf("load coupon codes: %w", err)
	}

	n := uint(len(codes))
	if n < 1000 {
		n = 1000
	}
	f := bloom.NewWithEstimates(n, 0.01)
	for _, code := range codes {
		f.AddString(NormalizeCode(code))
	}

	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
	log.Printf("✅ Coupon filter warmed with %d codes", len(codes))
	return nil
}

func (s *Service) mightExist(code string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.filter == nil {
		return true
	}
	return s.filter.TestString(code)
}

func (s *Service) remember(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filter != nil {
		s.filter.AddString(code)
	}
}

// Lookup finds a coupon by its (case-insensitive) code.
func (s *Service) Lookup(ctx context.Context, code string) (*models.Coupon, error) {
	code = NormalizeCode(code)
	if code == "" || !s.mightExist(code) {
		return nil, ErrNotFound
	}
	c, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks a code against the user's cart and returns the discount it grants.
func (s *Service) Validate(ctx context.Context, code, userID string, items []models.CartItem) (*models.Coupon, models.CouponValidation, error) {
	c, err := s.Lookup(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return nil, models.CouponValidation{IsValid: false, ErrorMessage: "Invalid coupon code", Code: NormalizeCode(code)}, nil
	}
	if err != nil {
		return nil, models.CouponValidation{}, err
	}

	used := 0
	if c.MaxUsesPerUser > 0 && userID != "" {
		used, err = s.store.CountUserUsage(ctx, c.ID, userID)
		if err != nil {
			return nil, models.CouponValidation{}, fmt.Errorf("count coupon usage: %w", err)
		}
	}

	return c, Evaluate(*c, items, used, s.now()), nil
}

// Redeem consumes one use of the coupon for an order. The global limit is enforced
// with a compare-and-set so two concurrent checkouts cannot both take the last use.
func (s *Service) Redeem(ctx context.Context, c models.Coupon, userID string, orderID gocql.UUID) error {
	for attempt := 0; attempt < 5; attempt++ {
		if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
			return ErrExhausted
		}
		applied, err := s.store.IncrementUsage(ctx, c.ID, c.UsedCount)
		if err != nil {
			return fmt.Errorf("increment coupon usage: %w", err)
		}
		if applied {
			break
		}
		fresh, err := s.store.Get(ctx, c.ID)
		if err != nil {
			return err
		}
		c = *fresh
		if attempt == 4 {
			return fmt.Errorf("redeem coupon %s: too much contention", c.Code)
		}
	}

	return s.store.RecordUsage(ctx, models.CouponUsage{
		ID:       gocql.TimeUUID(),
		CouponID: c.ID,
		UserID:   userID,
		OrderID:  orderID,
		UsedAt:   s.now(),
	})
}

type CreateInput struct {
	Code           string    `json:"code" binding:"required"`
	Type           string    `json:"type" binding:"required"`
	Value          float64   `json:"value" binding:"required"`
	MinAmount      float64   `json:"min_amount"`
	MaxDiscount    *float64  `json:"max_discount"`
	MaxUses        int       `json:"max_uses"`
	MaxUsesPerUser int       `json:"max_uses_per_user"`
	Categories     []string  `json:"categories"`
	ProductIDs     []string  `json:"product_ids"`
	StartsAt       time.Time `json:"starts_at"`
	ExpiresAt      time.Time `json:"expires_at" binding:"required"`
}

func (s *Service) Create(ctx context.Context, in CreateInput, createdBy string) (*models.Coupon, error) {
	code := NormalizeCode(in.Code)
	if code == "" {
		return nil, fmt.Errorf("%w: empty code", ErrInvalidInput)
	}
	switch in.Type {
	case models.CouponPercentage:
		if in.Value <= 0 || in.Value > 100 {
			return nil, fmt.Errorf("%w: percentage must be between 1 and 100", ErrInvalidInput)
		}
	case models.CouponFixed:
		if in.Value <= 0 {
			return nil, fmt.Errorf("%w: fixed amount must be positive", ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidInput, in.Type)
	}
	if in.MaxUses < 0 || in.MaxUsesPerUser < 0 || in.MinAmount < 0 {
		return nil, fmt.Errorf("%w: limits must not be negative", ErrInvalidInput)
	}

	if _, err := s.store.GetByCode(ctx, code); err == nil {
		return nil, ErrCodeTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.now()
	if in.StartsAt.IsZero() {
		in.StartsAt = now
	}
	if !in.ExpiresAt.After(in.StartsAt) {
		return nil, fmt.Errorf("%w: expires_at must be after starts_at", ErrInvalidInput)
	}

	c := models.Coupon{
		ID:             gocql.TimeUUID(),
		Code:           code,
		Type:           in.Type,
		Value:          in.Value,
		MinAmount:      in.MinAmount,
		MaxDiscount:    in.MaxDiscount,
		MaxUses:        in.MaxUses,
		MaxUsesPerUser: in.MaxUsesPerUser,
		Categories:     in.Categories,
		ProductIDs:     in.ProductIDs,
		StartsAt:       in.StartsAt,
		ExpiresAt:      in.ExpiresAt,
		IsActive:       true,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	s.remember(code)

	log.Printf("✅ Coupon created: %s", c.Code)
	return &c, nil
}

func (s *Service) List(ctx context.Context) ([]models.Coupon, error) {
	return s.store.List(ctx)
}

type UpdateInput struct {
	IsActive  *bool      `json:"is_active"`
	MaxUses   *int       `json:"max_uses"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (s *Service) Update(ctx context.Context, id gocql.UUID, in UpdateInput) (*models.Coupon, error) {
	if in.IsActive == nil && in.MaxUses == nil && in.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: no update provided", ErrInvalidInput)
	}

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	if in.MaxUses != nil {
		if *in.MaxUses < 0 {
			return nil, fmt.Errorf("%w: max_uses must not be negative", ErrInvalidInput)
		}
		c.MaxUses = *in.MaxUses
	}
	if in.ExpiresAt != nil {
		c.ExpiresAt = *in.ExpiresAt
	}
	c.UpdatedAt = s.now()

	if err := s.store.Update(ctx, *c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Delete(ctx context.Context, id gocql.UUID) error {
	return s.store.Delete(ctx, id)
}
