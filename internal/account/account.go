package account

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/markbates/goth"

	"subscription_live/internal/models"
	"subscription_live/internal/utils"
)

var (
	ErrEmailTaken         = models.ErrEmailTaken
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("invalid account details")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrSocialAccount      = errors.New("this account signs in with a social provider")
	ErrInvalidRefresh     = errors.New("refresh token is invalid or expired")
	ErrInvalidRole        = errors.New("unknown role")
)

const minPasswordLength = 8

// Store persists users. Create must fail with ErrEmailTaken when the email is
// already registered.
type Store interface {
	Create(ctx context.Context, u models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, u models.User) error
	UpdatePassword(ctx context.Context, id, hash string) error
	List(ctx context.Context, limit int) ([]models.User, error)
}

// Sessions is the Redis side of authentication.
type Sessions interface {
	PasswordVerified(ctx context.Context, email, password string) bool
	RememberPassword(ctx context.Context, email, password string)
	InvalidateAuth(ctx context.Context, email string) error
	StoreRefreshToken(ctx context.Context, token, userID string, ttl time.Duration) error
	ConsumeRefreshToken(ctx context.Context, token string) (string, error)
	DeleteRefreshToken(ctx context.Context, token string) error
	BlacklistToken(ctx context.Context, tokenID string, ttl time.Duration) error
}

type Service struct {
	store      Store
	sessions   Sessions
	tokens     *utils.TokenIssuer
	refreshTTL time.Duration
	now        func() time.Time
}

func NewService(store Store, sessions Sessions, tokens *utils.TokenIssuer, refreshTTL time.Duration) *Service {
	return &Service{store: store, sessions: sessions, tokens: tokens, refreshTTL: refreshTTL, now: time.Now}
}

// Tokens is the pair handed to a client after authentication.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type AuthResult struct {
	User   *models.User `json:"user"`
	Tokens Tokens       `json:"tokens"`
}

type RegisterInput struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := NormalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email address", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := models.User{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(in.Name),
		Email:     email,
		Phone:     strings.TrimSpace(in.Phone),
		Password:  hash,
		Role:      models.RoleCustomer,
		Provider:  models.ProviderLocal,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}

	log.Printf("✅ New account: %s", user.Email)
	return s.authenticate(ctx, &user)
}

func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	user, err := s.store.GetByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if user.Provider != models.ProviderLocal || user.Password == "" {
		return nil, ErrSocialAccount
	}

	if !s.sessions.PasswordVerified(ctx, email, password) {
		ok, err := utils.VerifyPassword(password, user.Password)
		if err != nil {
			log.Printf("⚠️ Stored hash for %s unreadable: %v", email, err)
			return nil, ErrInvalidCredentials
		}
		if !ok {
			return nil, ErrInvalidCredentials
		}
		s.sessions.RememberPassword(ctx, email, password)
	}

	return s.authenticate(ctx, user)
}

// Refresh exchanges a refresh token for a new pair. The old refresh token is consumed.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	userID, err := s.sessions.ConsumeRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, ErrInvalidRefresh
	}
	user, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, ErrInvalidRefresh
	}
	return s.authenticate(ctx, user)
}

// Logout revokes the access token until it would have expired and drops the refresh token.
func (s *Service) Logout(ctx context.Context, claims *utils.Claims, refreshToken string) error {
	if err := s.sessions.BlacklistToken(ctx, claims.ID, claims.Remaining(s.now())); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	if refreshToken != "" {
		if err := s.sessions.DeleteRefreshToken(ctx, refreshToken); err != nil {
			log.Printf("⚠️ Refresh token not deleted: %v", err)
		}
	}
	return nil
}

func (s *Service) authenticate(ctx context.Context, user *models.User) (*AuthResult, error) {
	access, claims, err := s.tokens.Issue(*user)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := utils.RandomToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.sessions.StoreRefreshToken(ctx, refresh, user.ID, s.refreshTTL); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &AuthResult{
		User: user,
		Tokens: Tokens{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresAt:    claims.ExpiresAt.Time,
		},
	}, nil
}

func (s *Service) Profile(ctx context.Context, userID string) (*models.User, error) {
	return s.store.Get(ctx, userID)
}

type ProfileInput struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
	Image *string `json:"image"`
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*models.User, error) {
	user, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
		}
		user.Name = name
	}
	if in.Phone != nil {
		user.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Image != nil {
		user.Image = strings.TrimSpace(*in.Image)
	}
	user.UpdatedAt = s.now()

	if err := s.store.Update(ctx, *user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if user.Provider != models.ProviderLocal {
		return ErrSocialAccount
	}
	ok, err := utils.VerifyPassword(oldPassword, user.Password)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}
	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	if err := s.sessions.InvalidateAuth(ctx, user.Email); err != nil {
		log.Printf("⚠️ Auth cache for %s not invalidated: %v", user.Email, err)
	}
	log.Printf("🔑 Password changed for %s", user.Email)
	return nil
}

// SocialLogin signs in a user coming back from an OAuth provider, creating the
// account on first visit.
func (s *Service) SocialLogin(ctx context.Context, gu goth.User) (*AuthResult, error) {
	email := NormalizeEmail(gu.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: provider returned no email", ErrInvalidInput)
	}

	user, err := s.store.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if user.Image == "" && gu.AvatarURL != "" {
			user.Image = gu.AvatarURL
			user.UpdatedAt = s.now()
			if err := s.store.Update(ctx, *user); err != nil {
				log.Printf("⚠️ Avatar for %s not saved: %v", email, err)
			}
		}
	case errors.Is(err, models.ErrNotFound):
		now := s.now()
		name := gu.Name
		if name == "" {
			name = strings.TrimSpace(gu.FirstName + " " + gu.LastName)
		}
		user = &models.User{
			ID:         uuid.NewString(),
			Name:       name,
			Email:      email,
			Image:      gu.AvatarURL,
			Role:       models.RoleCustomer,
			Provider:   gu.Provider,
			ProviderID: gu.UserID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.store.Create(ctx, *user); err != nil {
			return nil, err
		}
		log.Printf("✅ New %s account: %s", gu.Provider, email)
	default:
		return nil, err
	}

	return s.authenticate(ctx, user)
}

func (s *Service) ListUsers(ctx context.Context, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.List(ctx, limit)
}

func (s *Service) SetRole(ctx context.Context, userID, role string) (*models.User, error) {
	if role != models.RoleAdmin && role != models.RoleCustomer {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	user, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Role = role
	user.UpdatedAt = s.now()
	if err := s.store.Update(ctx, *user); err != nil {
		return nil, err
	}
	log.Printf("🔑 Role of %s set to %s", user.Email, role)
	return user, nil
}
