package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"subscription_live/internal/models"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrProductInactive = errors.New("product is not available")
	ErrItemNotFound    = errors.New("item not in cart")
)

// MaxQuantity caps a single cart line.
const MaxQuantity = 10

// Store persists a user's cart items.
type Store interface {
	Load(ctx context.Context, userID string) ([]models.CartItem, error)
	Save(ctx context.Context, userID string, items []models.CartItem) error
	Clear(ctx context.Context, userID string) error
}

// Products resolves catalog entries so the cart always holds current prices.
type Products interface {
	Get(ctx context.Context, idOrSlug string) (*models.Product, error)
}

type Service struct {
	store    Store
	products Products
}

func NewService(store Store, products Products) *Service {
	return &Service{store: store, products: products}
}

func (s *Service) Get(ctx context.Context, userID string) (*models.Cart, error) {
	items, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Summarize(userID, items), nil
}

// Add puts qty units of a product in the cart, merging with an existing line.
func (s *Service) Add(ctx context.Context, userID, productID string, qty int) (*models.Cart, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	product, err := s.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	items = addItem(items, snapshot(product), qty)

	if err := s.store.Save(ctx, userID, items); err != nil {
		return nil, err
	}
	return Summarize(userID, items), nil
}

// UpdateQuantity sets the quantity of a line; zero removes it.
func (s *Service) UpdateQuantity(ctx context.Context, userID, productID string, qty int) (*models.Cart, error) {
	if qty < 0 {
		return nil, ErrInvalidQuantity
	}
	if qty == 0 {
		return s.Remove(ctx, userID, productID)
	}

	items, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	i := indexOf(items, productID)
	if i < 0 {
		return nil, ErrItemNotFound
	}
	items[i].Quantity = min(qty, MaxQuantity)

	if err := s.store.Save(ctx, userID, items); err != nil {
		return nil, err
	}
	return Summarize(userID, items), nil
}

func (s *Service) Remove(ctx context.Context, userID, productID string) (*models.Cart, error) {
	items, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	i := indexOf(items, productID)
	if i < 0 {
		return nil, ErrItemNotFound
	}
	items = append(items[:i], items[i+1:]...)

	if err := s.store.Save(ctx, userID, items); err != nil {
		return nil, err
	}
	return Summarize(userID, items), nil
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.store.Clear(ctx, userID)
}

// GuestItem is a line from a cart kept on the client before login.
type GuestItem struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

// Merge folds a guest cart into the user's cart. Lines that no longer resolve
// to an active product are dropped.
func (s *Service) Merge(ctx context.Context, userID string, guest []GuestItem) (*models.Cart, error) {
	items, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, g := range guest {
		if g.Quantity <= 0 {
			continue
		}
		product, err := s.activeProduct(ctx, g.ProductID)
		if err != nil {
			continue
		}
		items = addItem(items, snapshot(product), g.Quantity)
	}

	if err := s.store.Save(ctx, userID, items); err != nil {
		return nil, err
	}
	return Summarize(userID, items), nil
}

// Reprice refreshes every line from the catalog. It fails if any product is gone
// or inactive, since checkout must not charge a stale price.
func (s *Service) Reprice(ctx context.Context, items []models.CartItem) ([]models.CartItem, error) {
	out := make([]models.CartItem, 0, len(items))
	for _, item := range items {
		product, err := s.activeProduct(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", item.Name, err)
		}
		fresh := snapshot(product)
		fresh.Quantity = item.Quantity
		out = append(out, fresh)
	}
	return out, nil
}

func (s *Service) activeProduct(ctx context.Context, productID string) (*models.Product, error) {
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, ErrProductInactive
	}
	return product, nil
}

func snapshot(p *models.Product) models.CartItem {
	return models.CartItem{
		ProductID: p.ID.String(),
		Name:      p.Name,
		Category:  p.Category,
		Price:     p.Price,
		Month:     p.Month,
		ImageURL:  p.Thumbnail(),
	}
}

func addItem(items []models.CartItem, item models.CartItem, qty int) []models.CartItem {
	if i := indexOf(items, item.ProductID); i >= 0 {
		qty += items[i].Quantity
		item.Quantity = min(qty, MaxQuantity)
		items[i] = item
		return items
	}
	item.Quantity = min(qty, MaxQuantity)
	return append(items, item)
}

func indexOf(items []models.CartItem, productID string) int {
	for i, item := range items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Summarize computes the subtotal and unit count of a cart.
func Summarize(userID string, items []models.CartItem) *models.Cart {
	if items == nil {
		items = []models.CartItem{}
	}
	subtotal := decimal.Zero
	count := 0
	for _, item := range items {
		subtotal = subtotal.Add(decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity))))
		count += item.Quantity
	}
	return &models.Cart{
		UserID:   userID,
		Items:    items,
		Subtotal: subtotal.Round(2).InexactFloat64(),
		Count:    count,
	}
}
