package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"subscription_live/internal/models"
)

const (
	CartTTL = 30 * 24 * time.Hour

	CartUpdated = "updated"
	CartCleared = "cleared"
)

func cartKey(userID string) string { return "cart:" + userID }

// CartChannel is the pub/sub channel carrying change events of a user's cart.
func CartChannel(userID string) string { return "cart:" + userID }

// CartStore keeps carts as JSON lists in Redis.
type CartStore struct {
	rdb *redis.Client
}

func NewCartStore(c *Cache) *CartStore {
	return &CartStore{rdb: c.rdb}
}

// Load returns the user's items. A corrupted entry is logged and treated as empty.
func (s *CartStore) Load(ctx context.Context, userID string) ([]models.CartItem, error) {
	data, err := s.rdb.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	var items []models.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		log.Printf("⚠️ Corrupted cart for user %s, starting empty: %v", userID, err)
		return nil, nil
	}
	return items, nil
}

func (s *CartStore) Save(ctx context.Context, userID string, items []models.CartItem) error {
	if len(items) == 0 {
		return s.Clear(ctx, userID)
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := s.rdb.Set(ctx, cartKey(userID), data, CartTTL).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	s.publish(ctx, userID, CartUpdated)
	return nil
}

func (s *CartStore) Clear(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	s.publish(ctx, userID, CartCleared)
	return nil
}

func (s *CartStore) publish(ctx context.Context, userID, event string) {
	if err := s.rdb.Publish(ctx, CartChannel(userID), event).Err(); err != nil {
		log.Printf("⚠️ Cart event %s for %s not published: %v", event, userID, err)
	}
}

// Subscribe streams cart events for a user until ctx is done.
func (s *CartStore) Subscribe(ctx context.Context, userID string) <-chan string {
	sub := s.rdb.Subscribe(ctx, CartChannel(userID))
	out := make(chan string)

	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
