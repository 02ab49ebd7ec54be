// Package payment declares the gateway contract shared by bKash and Stripe.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	StatusInitiated = "initiated"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusRefunded  = "refunded"
)

var (
	ErrUnknownGateway = errors.New("unknown payment gateway")
	ErrNotCompleted   = errors.New("payment not completed")
)

// GatewayError is a business error reported by the gateway (declined, insufficient balance...).
type GatewayError struct {
	Gateway string
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Gateway, e.Message, e.Code)
}

type CreateRequest struct {
	OrderID     string
	Amount      float64
	Currency    string
	PayerRef    string
	Email       string
	CallbackURL string
}

// Session is what the client needs to hand the user over to the gateway.
type Session struct {
	PaymentID    string `json:"payment_id"`
	RedirectURL  string `json:"redirect_url,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	Status       string `json:"status"`
}

type Result struct {
	PaymentID string
	TrxID     string
	Status    string
	Amount    float64
	Payer     string
}

func (r *Result) Completed() bool { return r != nil && r.Status == StatusCompleted }

type RefundRequest struct {
	PaymentID string
	TrxID     string
	Amount    float64
	Reason    string
}

type RefundResult struct {
	RefundID string
	Status   string
	Amount   float64
}

type Gateway interface {
	Name() string
	CreatePayment(ctx context.Context, req CreateRequest) (*Session, error)
	ExecutePayment(ctx context.Context, paymentID string) (*Result, error)
	QueryPayment(ctx context.Context, paymentID string) (*Result, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// Registry resolves gateways by name.
type Registry struct {
	gateways map[string]Gateway
	fallback string
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway)}
	for _, g := range gateways {
		if g == nil {
			continue
		}
		if r.fallback == "" {
			r.fallback = g.Name()
		}
		r.gateways[g.Name()] = g
	}
	return r
}

// Get returns the named gateway; an empty name selects the first registered one.
func (r *Registry) Get(name string) (Gateway, error) {
	if name == "" {
		name = r.fallback
	}
	g, ok := r.gateways[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return g, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for n := range r.gateways {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
