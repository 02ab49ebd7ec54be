package store

import (
	"context"
	"time"

	"github.com/gocql/gocql"

	"subscription_live/internal/models"
)

const userColumns = `user_id, name, email, phone, image, password, role, provider, provider_id, created_at, updated_at`

// Users keeps a users_by_email table so the email claim can be made with a
// lightweight transaction.
type Users struct {
	session *gocql.Session
}

func NewUsers(session *gocql.Session) *Users {
	return &Users{session: session}
}

func (s *Users) Create(ctx context.Context, u models.User) error {
	applied, err := s.session.Query(`INSERT INTO users_by_email (email, user_id) VALUES (?, ?) IF NOT EXISTS`,
		u.Email, u.ID).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return err
	}
	if !applied {
		return models.ErrEmailTaken
	}

	err = s.session.Query(`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.Phone, u.Image, u.Password, u.Role, u.Provider, u.ProviderID, u.CreatedAt, u.UpdatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		// release the email so the user can try again
		_ = s.session.Query(`DELETE FROM users_by_email WHERE email = ?`, u.Email).WithContext(ctx).Exec()
		return err
	}
	return nil
}

func (s *Users) Get(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.session.Query(`SELECT `+userColumns+` FROM users WHERE user_id = ?`, id).
		WithContext(ctx).Scan(userFields(&u)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var id string
	if err := s.session.Query(`SELECT user_id FROM users_by_email WHERE email = ?`, email).
		WithContext(ctx).Scan(&id); err != nil {
		return nil, notFound(err)
	}
	return s.Get(ctx, id)
}

func (s *Users) Update(ctx context.Context, u models.User) error {
	return s.session.Query(`UPDATE users SET name = ?, phone = ?, image = ?, role = ?, provider = ?, provider_id = ?, updated_at = ? WHERE user_id = ?`,
		u.Name, u.Phone, u.Image, u.Role, u.Provider, u.ProviderID, u.UpdatedAt, u.ID,
	).WithContext(ctx).Exec()
}

func (s *Users) UpdatePassword(ctx context.Context, id, hash string) error {
	return s.session.Query(`UPDATE users SET password = ?, updated_at = ? WHERE user_id = ?`,
		hash, time.Now(), id).WithContext(ctx).Exec()
}

func (s *Users) List(ctx context.Context, limit int) ([]models.User, error) {
	iter := s.session.Query(`SELECT `+userColumns+` FROM users LIMIT ?`, limit).WithContext(ctx).Iter()

	var users []models.User
	var u models.User
	for iter.Scan(userFields(&u)...) {
		u.Password = ""
		users = append(users, u)
		u = models.User{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return users, nil
}

func userFields(u *models.User) []interface{} {
	return []interface{}{
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.Image, &u.Password, &u.Role, &u.Provider, &u.ProviderID, &u.CreatedAt, &u.UpdatedAt,
	}
}
