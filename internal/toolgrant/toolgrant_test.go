package toolgrant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gocql/gocql"

	"subscription_live/internal/models"
	"subscription_live/internal/secure"
)

type memStore struct {
	mu    sync.Mutex
	tools map[gocql.UUID]models.Tool
}

func newMemStore(tools ...models.Tool) *memStore {
	s := &memStore{tools: map[gocql.UUID]models.Tool{}}
	for _, t := range tools {
		s.tools[t.ID] = t
	}
	return s
}

func (s *memStore) Create(_ context.Context, t models.Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[t.ID] = t
	return nil
}

func (s *memStore) Get(_ context.Context, id gocql.UUID) (*models.Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tools[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	t.Users = append([]string(nil), t.Users...)
	return &t, nil
}

func (s *memStore) List(_ context.Context, category string) ([]models.Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Tool
	for _, t := range s.tools {
		if category == "" || t.Category == category {
			t.Users = append([]string(nil), t.Users...)
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) Update(ctx context.Context, t models.Tool) error { return s.Create(ctx, t) }

func (s *memStore) Delete(_ context.Context, id gocql.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tools, id)
	return nil
}

func (s *memStore) AddUser(_ context.Context, id gocql.UUID, holder string, expected int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tools[id]
	if len(t.Users) != expected {
		return false, nil
	}
	t.Users = append(t.Users, holder)
	s.tools[id] = t
	return true, nil
}

func (s *memStore) RemoveUser(_ context.Context, id gocql.UUID, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tools[id]
	kept := t.Users[:0]
	for _, u := range t.Users {
		if u != holder {
			kept = append(kept, u)
		}
	}
	t.Users = kept
	s.tools[id] = t
	return nil
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func tool(name string, order int, users int, maxUsers int, active bool) models.Tool {
	t := models.Tool{
		ID:        gocql.TimeUUID(),
		Category:  "chatgpt",
		Name:      name,
		MaxUsers:  maxUsers,
		IsActive:  active,
		CreatedAt: epoch.Add(time.Duration(order) * time.Hour),
	}
	for i := 0; i < users; i++ {
		t.Users = append(t.Users, fmt.Sprintf("%s-holder-%d", name, i))
	}
	return t
}

func TestPick(t *testing.T) {
	tests := []struct {
		name  string
		tools []models.Tool
		limit int
		want  string
	}{
		{name: "empty inventory", limit: 5},
		{name: "first under capacity", tools: []models.Tool{tool("a", 0, 5, 0, true), tool("b", 1, 2, 0, true), tool("c", 2, 0, 0, true)}, limit: 5, want: "b"},
		{name: "creation order wins over slice order", tools: []models.Tool{tool("late", 5, 0, 0, true), tool("early", 1, 0, 0, true)}, limit: 5, want: "early"},
		{name: "inactive skipped", tools: []models.Tool{tool("off", 0, 0, 0, false), tool("on", 1, 3, 0, true)}, limit: 5, want: "on"},
		{name: "tool max users overrides limit", tools: []models.Tool{tool("small", 0, 2, 2, true), tool("big", 1, 4, 10, true)}, limit: 3, want: "big"},
		{name: "all full", tools: []models.Tool{tool("a", 0, 3, 0, true), tool("b", 1, 3, 0, true)}, limit: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pick(tt.tools, tt.limit)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("Pick = %s, want nil", got.Name)
				}
				return
			}
			if got == nil || got.Name != tt.want {
				t.Fatalf("Pick = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestAllocateNeverOversells(t *testing.T) {
	store := newMemStore(tool("a", 0, 0, 0, true), tool("b", 1, 0, 0, true))
	alloc := NewAllocator(store, func(string) int { return 3 })

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted, denied := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := alloc.Allocate(context.Background(), "ChatGPT", fmt.Sprintf("order:%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case errors.Is(err, ErrNoToolAvailable):
				denied++
			default:
				t.Errorf("Allocate: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if granted != 6 || denied != 4 {
		t.Fatalf("granted=%d denied=%d, want 6 and 4", granted, denied)
	}
	tools, _ := store.List(context.Background(), "chatgpt")
	for _, tl := range tools {
		if len(tl.Users) > 3 {
			t.Fatalf("tool %s has %d users", tl.Name, len(tl.Users))
		}
	}
}

func TestAllocateIsIdempotentPerHolder(t *testing.T) {
	store := newMemStore(tool("a", 0, 0, 0, true))
	alloc := NewAllocator(store, func(string) int { return 5 })
	ctx := context.Background()

	first, err := alloc.Allocate(ctx, "chatgpt", "order:0")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	second, err := alloc.Allocate(ctx, "chatgpt", "order:0")
	if err != nil {
		t.Fatalf("Allocate again: %v", err)
	}
	if first.ID != second.ID || len(second.Users) != 1 {
		t.Fatalf("second grant = %+v", second)
	}
}

func TestRelease(t *testing.T) {
	tl := tool("a", 0, 0, 1, true)
	store := newMemStore(tl)
	alloc := NewAllocator(store, func(string) int { return 1 })
	ctx := context.Background()

	if _, err := alloc.Allocate(ctx, "chatgpt", "order:0"); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := alloc.Allocate(ctx, "chatgpt", "order:1"); !errors.Is(err, ErrNoToolAvailable) {
		t.Fatalf("err = %v, want ErrNoToolAvailable", err)
	}
	if err := alloc.Release(ctx, tl.ID.String(), "order:0"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := alloc.Allocate(ctx, "chatgpt", "order:1"); err != nil {
		t.Fatalf("Allocate after release: %v", err)
	}
	if err := alloc.Release(ctx, "not-a-uuid", "x"); err == nil {
		t.Fatal("expected error for bad tool id")
	}
}

type subsFunc func(ctx context.Context, id gocql.UUID) (*models.Subscription, error)

func (f subsFunc) Get(ctx context.Context, id gocql.UUID) (*models.Subscription, error) {
	return f(ctx, id)
}

func TestCredentials(t *testing.T) {
	cipher, err := secure.NewCipher("tool-secret")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	store := newMemStore()
	ctx := context.Background()

	svc := NewService(store, nil, cipher)
	created, err := svc.Create(ctx, ToolInput{Category: "ChatGPT", Name: "Team 1", LoginEmail: "team1@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Secret == "hunter22" || created.Category != "chatgpt" {
		t.Fatalf("created = %+v", created)
	}

	toolID := created.ID.String()
	subs := map[string]*models.Subscription{
		"active":   {UserID: "u1", Status: models.SubscriptionActive, ExpireDate: time.Now().Add(time.Hour), ToolID: &toolID},
		"expired":  {UserID: "u1", Status: models.SubscriptionActive, ExpireDate: time.Now().Add(-time.Hour), ToolID: &toolID},
		"pending":  {UserID: "u1", Status: models.SubscriptionActive, ExpireDate: time.Now().Add(time.Hour)},
		"stranger": {UserID: "u2", Status: models.SubscriptionActive, ExpireDate: time.Now().Add(time.Hour), ToolID: &toolID},
	}
	ids := map[gocql.UUID]string{}
	byName := map[string]gocql.UUID{}
	for name := range subs {
		id := gocql.TimeUUID()
		ids[id] = name
		byName[name] = id
	}
	svc.subs = subsFunc(func(_ context.Context, id gocql.UUID) (*models.Subscription, error) {
		name, ok := ids[id]
		if !ok {
			return nil, models.ErrNotFound
		}
		return subs[name], nil
	})

	creds, err := svc.Credentials(ctx, "u1", byName["active"])
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if creds.Password != "hunter22" || creds.LoginEmail != "team1@example.com" {
		t.Fatalf("creds = %+v", creds)
	}

	for name, want := range map[string]error{"expired": ErrInactive, "pending": ErrNoSeat, "stranger": ErrForbidden} {
		if _, err := svc.Credentials(ctx, "u1", byName[name]); !errors.Is(err, want) {
			t.Errorf("%s: err = %v, want %v", name, err, want)
		}
	}
	if _, err := svc.Credentials(ctx, "u1", gocql.TimeUUID()); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown: err = %v", err)
	}
}
