// Package stripepay exposes Stripe PaymentIntents as a payment.Gateway.
package stripepay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/refund"
	"github.com/stripe/stripe-go/v83/webhook"

	"subscription_live/internal/config"
	"subscription_live/internal/payment"
)

const Name = "stripe"

type Gateway struct {
	currency      string
	webhookSecret string
}

// New sets the global Stripe key and returns the gateway.
func New(cfg config.StripeConfig) *Gateway {
	stripe.Key = cfg.SecretKey
	log.Println("✅ Stripe initialised")
	return &Gateway{
		currency:      strings.ToLower(cfg.Currency),
		webhookSecret: cfg.WebhookSecret,
	}
}

func (g *Gateway) Name() string { return Name }

func (g *Gateway) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.Session, error) {
	currency := g.currency
	if req.Currency != "" {
		currency = strings.ToLower(req.Currency)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(MinorUnits(req.Amount)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"order_id": req.OrderID,
			"email":    req.Email,
		},
	}
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, wrap(err)
	}

	log.Printf("💳 PaymentIntent created: %s (%.2f %s) for order %s", intent.ID, req.Amount, currency, req.OrderID)
	return &payment.Session{
		PaymentID:    intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       mapStatus(intent.Status),
	}, nil
}

// ExecutePayment has nothing to capture with automatic payment methods; it reads the intent.
func (g *Gateway) ExecutePayment(ctx context.Context, paymentID string) (*payment.Result, error) {
	return g.QueryPayment(ctx, paymentID)
}

func (g *Gateway) QueryPayment(ctx context.Context, paymentID string) (*payment.Result, error) {
	params := &stripe.PaymentIntentParams{}

	intent, err := paymentintent.Get(paymentID, params)
	if err != nil {
		return nil, wrap(err)
	}

	res := &payment.Result{
		PaymentID: intent.ID,
		Status:    mapStatus(intent.Status),
		Amount:    FromMinorUnits(intent.Amount),
	}
	if intent.LatestCharge != nil {
		res.TrxID = intent.LatestCharge.ID
	}
	return res, nil
}

func (g *Gateway) Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentID),
		Amount:        stripe.Int64(MinorUnits(req.Amount)),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}

	r, err := refund.New(params)
	if err != nil {
		return nil, wrap(err)
	}

	status := payment.StatusFailed
	if r.Status == stripe.RefundStatusSucceeded || r.Status == stripe.RefundStatusPending {
		status = payment.StatusRefunded
	}
	log.Printf("💰 Stripe refund %s (%s) for %s", r.ID, r.Status, req.PaymentID)
	return &payment.RefundResult{RefundID: r.ID, Status: status, Amount: FromMinorUnits(r.Amount)}, nil
}

// WebhookEvent is the part of a Stripe event the checkout cares about.
type WebhookEvent struct {
	Type      string
	PaymentID string
	Status    string
}

// ParseWebhook verifies the signature (when a secret is configured) and extracts the PaymentIntent.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	var event stripe.Event
	if g.webhookSecret == "" {
		log.Println("⚠️ No STRIPE_WEBHOOK_SECRET, webhook signature not verified")
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("invalid webhook payload: %w", err)
		}
	} else {
		var err error
		event, err = webhook.ConstructEvent(payload, signature, g.webhookSecret)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook signature: %w", err)
		}
	}

	out := &WebhookEvent{Type: string(event.Type)}
	if !strings.HasPrefix(out.Type, "payment_intent.") || event.Data == nil {
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	out.PaymentID = pi.ID
	out.Status = mapStatus(pi.Status)
	return out, nil
}

func mapStatus(s stripe.PaymentIntentStatus) string {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return payment.StatusCompleted
	case stripe.PaymentIntentStatusCanceled:
		return payment.StatusCancelled
	default:
		return payment.StatusInitiated
	}
}

// MinorUnits converts 499.99 into 49999.
func MinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}

func FromMinorUnits(v int64) float64 {
	return decimal.New(v, -2).InexactFloat64()
}

func wrap(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Type != stripe.ErrorTypeAPI {
		return &payment.GatewayError{Gateway: Name, Code: string(se.Code), Message: se.Msg}
	}
	return fmt.Errorf("stripe: %w", err)
}
