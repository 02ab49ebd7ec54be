package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"subscription_live/internal/models"
)

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, to, subject, html string, attachments ...Attachment) error
}

// Notifier composes the customer emails of the storefront.
type Notifier struct {
	sender      Sender
	frontendURL string
	pdf         func(ctx context.Context, html string) ([]byte, error)
}

// NewNotifier builds a notifier. When receipts is true, order confirmations carry a
// PDF receipt rendered by headless Chrome.
func NewNotifier(sender Sender, frontendURL string, receipts bool) *Notifier {
	n := &Notifier{sender: sender, frontendURL: strings.TrimRight(frontendURL, "/")}
	if receipts {
		n.pdf = ReceiptPDF
	}
	return n
}

func (n *Notifier) OrderConfirmed(ctx context.Context, order models.Order) error {
	html, err := OrderConfirmationHTML(order, n.frontendURL+"/account/subscriptions")
	if err != nil {
		return fmt.Errorf("render confirmation: %w", err)
	}

	var attachments []Attachment
	if n.pdf != nil {
		pdf, err := n.pdf(ctx, html)
		if err != nil {
			log.Printf("⚠️ Receipt for order %s not rendered: %v", order.ID, err)
		} else {
			attachments = append(attachments, Attachment{Name: "receipt-" + order.ID.String()[:8] + ".pdf", Data: pdf})
		}
	}

	if err := n.sender.Send(ctx, order.Email, "✅ Payment confirmed", html, attachments...); err != nil {
		return err
	}
	log.Printf("📧 Confirmation sent for order %s → %s", order.ID, order.Email)
	return nil
}

func (n *Notifier) ExpiryReminder(ctx context.Context, sub models.Subscription) error {
	html, err := ExpiryReminderHTML(sub, n.frontendURL+"/products")
	if err != nil {
		return fmt.Errorf("render reminder: %w", err)
	}
	return n.sender.Send(ctx, sub.Email, "⏰ Your "+sub.ProductName+" subscription ends soon", html)
}

func (n *Notifier) OrderRefunded(ctx context.Context, order models.Order, reason string) error {
	html, err := RefundHTML(order, reason)
	if err != nil {
		return fmt.Errorf("render refund: %w", err)
	}
	return n.sender.Send(ctx, order.Email, "💰 Refund processed", html)
}
