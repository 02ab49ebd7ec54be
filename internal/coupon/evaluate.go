package coupon

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"subscription_live/internal/models"
)

// Evaluate applies the coupon rules to a cart. usedByUser is how many times the
// user already redeemed this coupon.
func Evaluate(c models.Coupon, items []models.CartItem, usedByUser int, now time.Time) models.CouponValidation {
	invalid := func(msg string) models.CouponValidation {
		return models.CouponValidation{IsValid: false, ErrorMessage: msg, Code: c.Code}
	}

	if !c.IsActive {
		return invalid("This coupon is no longer active")
	}
	if !c.StartsAt.IsZero() && now.Before(c.StartsAt) {
		return invalid("This coupon is not valid yet")
	}
	if !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt) {
		return invalid("This coupon has expired")
	}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return invalid("This coupon has reached its usage limit")
	}
	if c.MaxUsesPerUser > 0 && usedByUser >= c.MaxUsesPerUser {
		return invalid("You have already used this coupon the maximum number of times")
	}

	subtotal := Subtotal(items)
	if subtotal.LessThan(decimal.NewFromFloat(c.MinAmount)) {
		return invalid(fmt.Sprintf("Minimum order amount is ৳%.2f", c.MinAmount))
	}

	base := subtotal
	if c.Restricted() {
		base = eligibleSubtotal(c, items)
		if base.IsZero() {
			return invalid("This coupon does not apply to the items in your cart")
		}
	}

	return models.CouponValidation{
		IsValid:  true,
		Discount: Discount(c, base).InexactFloat64(),
		Type:     c.Type,
		Code:     c.Code,
	}
}

// Discount computes the reduction on base, never exceeding it.
func Discount(c models.Coupon, base decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.Type {
	case models.CouponPercentage:
		d = base.Mul(decimal.NewFromFloat(c.Value)).Div(decimal.NewFromInt(100))
		if c.MaxDiscount != nil {
			d = decimal.Min(d, decimal.NewFromFloat(*c.MaxDiscount))
		}
	case models.CouponFixed:
		d = decimal.NewFromFloat(c.Value)
	}
	d = decimal.Min(d, base)
	if d.IsNegative() {
		return decimal.Zero
	}
	return d.Round(2)
}

// Subtotal sums price × quantity over the cart.
func Subtotal(items []models.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(lineTotal(item))
	}
	return total
}

func lineTotal(item models.CartItem) decimal.Decimal {
	return decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
}

func eligibleSubtotal(c models.Coupon, items []models.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if applies(c, item) {
			total = total.Add(lineTotal(item))
		}
	}
	return total
}

func applies(c models.Coupon, item models.CartItem) bool {
	for _, cat := range c.Categories {
		if strings.EqualFold(cat, item.Category) {
			return true
		}
	}
	for _, id := range c.ProductIDs {
		if id == item.ProductID {
			return true
		}
	}
	return false
}

// NormalizeCode upper-cases and trims a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
