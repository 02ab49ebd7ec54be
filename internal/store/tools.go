package store

import (
	"context"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"subscription_live/internal/models"
)

const toolColumns = `tool_id, category, name, login_email, secret, max_users, users, is_active, created_at, updated_at`

// Tools stores seat holders in a set next to a user_count column; user_count is
// the guard every seat change is conditioned on.
type Tools struct {
	session *gocql.Session
}

func NewTools(session *gocql.Session) *Tools {
	return &Tools{session: session}
}

func (s *Tools) Create(ctx context.Context, t models.Tool) error {
	return s.session.Query(`INSERT INTO tools (`+toolColumns+`, user_count) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, strings.ToLower(t.Category), t.Name, t.LoginEmail, t.Secret, t.MaxUsers, t.Users,
		t.IsActive, t.CreatedAt, t.UpdatedAt, len(t.Users),
	).WithContext(ctx).Exec()
}

func (s *Tools) Get(ctx context.Context, id gocql.UUID) (*models.Tool, error) {
	var t models.Tool
	err := s.session.Query(`SELECT `+toolColumns+` FROM tools WHERE tool_id = ?`, id).
		WithContext(ctx).Scan(toolFields(&t)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// List returns the tools of a category, or every tool when category is empty.
func (s *Tools) List(ctx context.Context, category string) ([]models.Tool, error) {
	q := s.session.Query(`SELECT ` + toolColumns + ` FROM tools`)
	if category != "" {
		q = s.session.Query(`SELECT `+toolColumns+` FROM tools WHERE category = ? ALLOW FILTERING`, strings.ToLower(category))
	}
	iter := q.WithContext(ctx).Iter()

	var tools []models.Tool
	var t models.Tool
	for iter.Scan(toolFields(&t)...) {
		tools = append(tools, t)
		t = models.Tool{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return tools, nil
}

// Update writes the editable fields and leaves the seat holders alone.
func (s *Tools) Update(ctx context.Context, t models.Tool) error {
	return s.session.Query(`UPDATE tools SET name = ?, login_email = ?, secret = ?, max_users = ?, is_active = ?, updated_at = ? WHERE tool_id = ?`,
		t.Name, t.LoginEmail, t.Secret, t.MaxUsers, t.IsActive, t.UpdatedAt, t.ID,
	).WithContext(ctx).Exec()
}

func (s *Tools) Delete(ctx context.Context, id gocql.UUID) error {
	return s.session.Query(`DELETE FROM tools WHERE tool_id = ?`, id).WithContext(ctx).Exec()
}

// AddUser adds holder to the tool only if the seat count is still expectedCount.
func (s *Tools) AddUser(ctx context.Context, id gocql.UUID, holder string, expectedCount int) (bool, error) {
	return s.session.Query(`UPDATE tools SET users = users + ?, user_count = ?, updated_at = ? WHERE tool_id = ? IF user_count = ?`,
		[]string{holder}, expectedCount+1, time.Now(), id, expectedCount,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
}

func (s *Tools) RemoveUser(ctx context.Context, id gocql.UUID, holder string) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		t, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if !t.HasUser(holder) {
			return nil
		}
		applied, err := s.session.Query(`UPDATE tools SET users = users - ?, user_count = ?, updated_at = ? WHERE tool_id = ? IF user_count = ?`,
			[]string{holder}, len(t.Users)-1, time.Now(), id, len(t.Users),
		).WithContext(ctx).MapScanCAS(map[string]interface{}{})
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
	}
	return errCASExhausted
}

func toolFields(t *models.Tool) []interface{} {
	return []interface{}{
		&t.ID, &t.Category, &t.Name, &t.LoginEmail, &t.Secret, &t.MaxUsers, &t.Users,
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	}
}
