package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gocql/gocql"

	"subscription_live/internal/config"
	"subscription_live/internal/models"
)

type sentMail struct {
	to, subject, html string
	attachments       []Attachment
}

type recorder struct {
	sent []sentMail
	err  error
}

func (r *recorder) Send(_ context.Context, to, subject, html string, attachments ...Attachment) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentMail{to, subject, html, attachments})
	return nil
}

func paidOrder() models.Order {
	expire := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	return models.Order{
		ID:         gocql.TimeUUID(),
		Email:      "buyer@example.com",
		Discount:   100,
		Total:      2400,
		CouponCode: "SAVE100",
		TrxID:      "TRX123",
		Items: []models.OrderItem{
			{Name: "ChatGPT Plus", Price: 2500, GrantStatus: models.GrantGranted, ExpireDate: &expire},
			{Name: "Netflix <4K>", Price: 0, GrantStatus: models.GrantPending},
		},
	}
}

func TestOrderConfirmationHTML(t *testing.T) {
	html, err := OrderConfirmationHTML(paidOrder(), "https://shop.example/account")
	if err != nil {
		t.Fatalf("OrderConfirmationHTML: %v", err)
	}
	for _, want := range []string{"ChatGPT Plus", "01 Jul 2026", "৳2500.00", "-৳100.00", "SAVE100", "৳2400.00", "TRX123", "access being prepared", "Netflix &lt;4K&gt;"} {
		if !strings.Contains(html, want) {
			t.Errorf("confirmation missing %q", want)
		}
	}
}

func TestExpiryReminderHTML(t *testing.T) {
	sub := models.Subscription{ProductName: "Spotify Premium", ExpireDate: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)}
	html, err := ExpiryReminderHTML(sub, "https://shop.example/products")
	if err != nil {
		t.Fatalf("ExpiryReminderHTML: %v", err)
	}
	if !strings.Contains(html, "Spotify Premium") || !strings.Contains(html, "05 Mar 2026") {
		t.Fatalf("reminder = %s", html)
	}
}

func TestNotifierOrderConfirmed(t *testing.T) {
	rec := &recorder{}
	n := NewNotifier(rec, "https://shop.example/", false)
	n.pdf = func(context.Context, string) ([]byte, error) { return []byte("%PDF"), nil }

	order := paidOrder()
	if err := n.OrderConfirmed(context.Background(), order); err != nil {
		t.Fatalf("OrderConfirmed: %v", err)
	}
	if len(rec.sent) != 1 {
		t.Fatalf("sent = %d", len(rec.sent))
	}
	m := rec.sent[0]
	if m.to != "buyer@example.com" || !strings.Contains(m.html, "https://shop.example/account/subscriptions") {
		t.Fatalf("mail = %+v", m)
	}
	if len(m.attachments) != 1 || !bytes.Equal(m.attachments[0].Data, []byte("%PDF")) {
		t.Fatalf("attachments = %+v", m.attachments)
	}
}

func TestNotifierSendsWithoutReceiptWhenRenderFails(t *testing.T) {
	rec := &recorder{}
	n := NewNotifier(rec, "https://shop.example", false)
	n.pdf = func(context.Context, string) ([]byte, error) { return nil, errors.New("no chrome") }

	if err := n.OrderConfirmed(context.Background(), paidOrder()); err != nil {
		t.Fatalf("OrderConfirmed: %v", err)
	}
	if len(rec.sent) != 1 || len(rec.sent[0].attachments) != 0 {
		t.Fatalf("sent = %+v", rec.sent)
	}
}

func TestPaymentQR(t *testing.T) {
	data, err := PaymentQR("https://sandbox.payment.bkash.com/?paymentId=TR0011")
	if err != nil {
		t.Fatalf("PaymentQR: %v", err)
	}
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(data, prefix) {
		t.Fatalf("data = %.40s", data)
	}
	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(data, prefix))
	if err != nil || !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("not a png: %v", err)
	}
}

func TestMailerDisabledWithoutHost(t *testing.T) {
	m := NewMailer(config.SMTPConfig{})
	if m.Enabled() {
		t.Fatal("mailer enabled without host")
	}
	if err := m.Send(context.Background(), "a@b.c", "s", "<p>x</p>"); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestMailerRejectsBadRecipient(t *testing.T) {
	m := NewMailer(config.SMTPConfig{Host: "smtp.example", From: "noreply@example.com"})
	if _, err := m.message("not an address", "s", "<p>x</p>", nil); err == nil {
		t.Fatal("expected error")
	}
}
