package toolgrant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/gocql/gocql"

	"subscription_live/internal/models"
)

var (
	ErrNoToolAvailable = errors.New("no tool available for category")
	ErrContention      = errors.New("tool allocation kept losing to concurrent grants")
)

const maxAllocateAttempts = 5

// Store persists tools. AddUser appends holder only while the tool still has
// expectedCount users, and reports whether the write was applied.
type Store interface {
	Create(ctx context.Context, t models.Tool) error
	Get(ctx context.Context, id gocql.UUID) (*models.Tool, error)
	List(ctx context.Context, category string) ([]models.Tool, error)
	Update(ctx context.Context, t models.Tool) error
	Delete(ctx context.Context, id gocql.UUID) error
	AddUser(ctx context.Context, id gocql.UUID, holder string, expectedCount int) (bool, error)
	RemoveUser(ctx context.Context, id gocql.UUID, holder string) error
}

// Pick returns the first active tool with a free seat, or nil. Tools are
// scanned in creation order.
func Pick(tools []models.Tool, categoryLimit int) *models.Tool {
	sorted := make([]models.Tool, len(tools))
	copy(sorted, tools)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	for i := range sorted {
		t := sorted[i]
		if !t.IsActive {
			continue
		}
		if len(t.Users) < t.Capacity(categoryLimit) {
			return &t
		}
	}
	return nil
}

// Allocator grants tool seats. Grants within one process are serialised per
// category; across processes the store's compare-and-set keeps seats from
// being oversold.
type Allocator struct {
	store  Store
	limits func(category string) int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewAllocator(store Store, limits func(category string) int) *Allocator {
	return &Allocator{store: store, limits: limits, locks: map[string]*sync.Mutex{}}
}

func (a *Allocator) categoryLock(category string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[category]
	if !ok {
		l = &sync.Mutex{}
		a.locks[category] = l
	}
	return l
}

// Allocate grants holder a seat on a tool of the given category and returns the tool.
// A holder that already has a seat gets the same tool back.
func (a *Allocator) Allocate(ctx context.Context, category, holder string) (*models.Tool, error) {
	category = strings.ToLower(category)
	l := a.categoryLock(category)
	l.Lock()
	defer l.Unlock()

	limit := a.limits(category)
	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tools, err := a.store.List(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("list %s tools: %w", category, err)
		}
		for i := range tools {
			if tools[i].HasUser(holder) {
				return &tools[i], nil
			}
		}

		tool := Pick(tools, limit)
		if tool == nil {
			log.Printf("⚠️ No %s tool has a free seat for %s", category, holder)
			return nil, fmt.Errorf("%w: %s", ErrNoToolAvailable, category)
		}

		applied, err := a.store.AddUser(ctx, tool.ID, holder, len(tool.Users))
		if err != nil {
			return nil, fmt.Errorf("grant seat on tool %s: %w", tool.ID, err)
		}
		if applied {
			tool.Users = append(tool.Users, holder)
			log.Printf("✅ Granted %s seat on %s to %s (%d/%d)", category, tool.Name, holder, len(tool.Users), tool.Capacity(limit))
			return tool, nil
		}
		log.Printf("⚠️ Lost race on tool %s, retrying (%d/%d)", tool.ID, attempt+1, maxAllocateAttempts)
	}
	return nil, ErrContention
}

// Release frees the seat holder occupies on a tool.
func (a *Allocator) Release(ctx context.Context, toolID, holder string) error {
	id, err := gocql.ParseUUID(toolID)
	if err != nil {
		return fmt.Errorf("invalid tool id %q: %w", toolID, err)
	}
	if err := a.store.RemoveUser(ctx, id, holder); err != nil {
		return fmt.Errorf("release seat on tool %s: %w", toolID, err)
	}
	log.Printf("🔌 Released seat %s on tool %s", holder, toolID)
	return nil
}
