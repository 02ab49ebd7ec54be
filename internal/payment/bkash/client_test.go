package bkash

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"subscription_live/internal/config"
	"subscription_live/internal/payment"
)

type fakeBkash struct {
	grants        atomic.Int32
	refreshes     atomic.Int32
	failures      atomic.Int32 // number of 502s to return before answering
	lastBody      map[string]string
	lastAuth      string
	execute       map[string]any
	rejectRefresh bool
	refundStatus  string
}

func (f *fakeBkash) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/tokenized/checkout/token/grant", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("username") != "user" || r.Header.Get("password") != "pass" {
			t.Errorf("missing credential headers")
		}
		n := f.grants.Add(1)
		writeJSON(w, map[string]any{
			"statusCode": "0000", "statusMessage": "Successful",
			"id_token": "token-" + string(rune('0'+n)), "refresh_token": "refresh", "expires_in": 3600,
		})
	})

	mux.HandleFunc("/tokenized/checkout/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshes.Add(1)
		if f.rejectRefresh {
			writeJSON(w, map[string]any{"statusCode": "2079", "statusMessage": "Invalid refresh token"})
			return
		}
		writeJSON(w, map[string]any{
			"statusCode": "0000", "id_token": "refreshed", "refresh_token": "refresh", "expires_in": 3600,
		})
	})

	mux.HandleFunc("/tokenized/checkout/create", func(w http.ResponseWriter, r *http.Request) {
		if f.failures.Load() > 0 {
			f.failures.Add(-1)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		f.lastAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
		writeJSON(w, map[string]any{
			"statusCode": "0000", "statusMessage": "Successful",
			"paymentID": "TR0011abc", "bkashURL": "https://sandbox.bka.sh/pay/TR0011abc",
			"amount": f.lastBody["amount"], "transactionStatus": "Initiated",
		})
	})

	mux.HandleFunc("/tokenized/checkout/execute", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, f.execute)
	})

	mux.HandleFunc("/tokenized/checkout/payment/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"statusCode": "0000", "paymentID": "TR0011abc", "trxID": "BFD90JRLST",
			"transactionStatus": "Completed", "amount": "499.00",
		})
	})

	mux.HandleFunc("/tokenized/checkout/payment/refund", func(w http.ResponseWriter, r *http.Request) {
		status := f.refundStatus
		if status == "" {
			status = "Completed"
		}
		writeJSON(w, map[string]any{
			"statusCode": "0000", "originalTrxID": "BFD90JRLST", "refundTrxID": "RF1",
			"transactionStatus": status, "amount": "499.00",
		})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, f *fakeBkash) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	c := New(config.BkashConfig{
		BaseURL:     srv.URL,
		AppKey:      "key",
		AppSecret:   "secret",
		Username:    "user",
		Password:    "pass",
		CallbackURL: "http://localhost/callback",
	}, srv.Client())
	c.delay = time.Millisecond
	return c
}

func TestCreatePayment(t *testing.T) {
	f := &fakeBkash{}
	c := newTestClient(t, f)

	session, err := c.CreatePayment(context.Background(), payment.CreateRequest{
		OrderID: "order-1",
		Amount:  499,
		Email:   "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	if session.PaymentID != "TR0011abc" || session.RedirectURL == "" {
		t.Errorf("unexpected session %+v", session)
	}
	if f.lastBody["amount"] != "499.00" {
		t.Errorf("expected amount 499.00, got %q", f.lastBody["amount"])
	}
	if f.lastBody["mode"] != "0011" || f.lastBody["intent"] != "sale" || f.lastBody["currency"] != "BDT" {
		t.Errorf("unexpected checkout parameters %v", f.lastBody)
	}
	if f.lastBody["callbackURL"] != "http://localhost/callback" {
		t.Errorf("expected default callback, got %q", f.lastBody["callbackURL"])
	}
	if f.lastBody["merchantInvoiceNumber"] != "order-1" {
		t.Errorf("expected invoice number order-1, got %q", f.lastBody["merchantInvoiceNumber"])
	}
	if f.lastAuth != "token-1" {
		t.Errorf("expected granted token in Authorization, got %q", f.lastAuth)
	}
}

func TestTokenIsCachedAndRefreshed(t *testing.T) {
	f := &fakeBkash{}
	c := newTestClient(t, f)
	now := time.Now()
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := c.CreatePayment(context.Background(), payment.CreateRequest{OrderID: "o", Amount: 10}); err != nil {
			t.Fatalf("CreatePayment: %v", err)
		}
	}
	if f.grants.Load() != 1 {
		t.Errorf("expected a single grant, got %d", f.grants.Load())
	}

	now = now.Add(2 * time.Hour)
	if _, err := c.CreatePayment(context.Background(), payment.CreateRequest{OrderID: "o", Amount: 10}); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if f.refreshes.Load() != 1 {
		t.Errorf("expected one refresh after expiry, got %d", f.refreshes.Load())
	}
	if f.lastAuth != "refreshed" {
		t.Errorf("expected refreshed token, got %q", f.lastAuth)
	}
}

func TestTokenRefreshFailureFallsBackToGrant(t *testing.T) {
	f := &fakeBkash{rejectRefresh: true}
	c := newTestClient(t, f)
	now := time.Now()
	c.now = func() time.Time { return now }

	if _, err := c.CreatePayment(context.Background(), payment.CreateRequest{OrderID: "o", Amount: 10}); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := c.CreatePayment(context.Background(), payment.CreateRequest{OrderID: "o", Amount: 10}); err != nil {
		t.Fatalf("CreatePayment after rejected refresh: %v", err)
	}

	if f.refreshes.Load() != 1 {
		t.Errorf("expected one refresh attempt, got %d", f.refreshes.Load())
	}
	if f.grants.Load() != 2 {
		t.Errorf("expected a second grant, got %d", f.grants.Load())
	}
	if f.lastAuth != "token-2" {
		t.Errorf("expected the newly granted token, got %q", f.lastAuth)
	}
}

func TestCreatePayment_RetriesServerErrors(t *testing.T) {
	f := &fakeBkash{}
	f.failures.Store(2)
	c := newTestClient(t, f)

	if _, err := c.CreatePayment(context.Background(), payment.CreateRequest{OrderID: "o", Amount: 10}); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
}

func TestExecutePayment(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		f := &fakeBkash{execute: map[string]any{
			"statusCode": "0000", "paymentID": "TR0011abc", "trxID": "BFD90JRLST",
			"transactionStatus": "Completed", "amount": "499.00", "customerMsisdn": "01770618575",
		}}
		c := newTestClient(t, f)

		res, err := c.ExecutePayment(context.Background(), "TR0011abc")
		if err != nil {
			t.Fatalf("ExecutePayment: %v", err)
		}
		if !res.Completed() || res.TrxID != "BFD90JRLST" || res.Amount != 499 {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("business error is not retried", func(t *testing.T) {
		f := &fakeBkash{execute: map[string]any{
			"statusCode": "2023", "statusMessage": "Insufficient Balance",
		}}
		c := newTestClient(t, f)

		_, err := c.ExecutePayment(context.Background(), "TR0011abc")
		var gwErr *payment.GatewayError
		if !errors.As(err, &gwErr) {
			t.Fatalf("expected GatewayError, got %v", err)
		}
		if gwErr.Code != "2023" {
			t.Errorf("expected code 2023, got %s", gwErr.Code)
		}
	})

	t.Run("legacy error shape", func(t *testing.T) {
		f := &fakeBkash{execute: map[string]any{
			"errorCode": "2056", "errorMessage": "Invalid Payment State",
		}}
		c := newTestClient(t, f)

		_, err := c.ExecutePayment(context.Background(), "TR0011abc")
		var gwErr *payment.GatewayError
		if !errors.As(err, &gwErr) || gwErr.Code != "2056" {
			t.Fatalf("expected GatewayError 2056, got %v", err)
		}
	})
}

func TestQueryAndRefund(t *testing.T) {
	f := &fakeBkash{}
	c := newTestClient(t, f)

	res, err := c.QueryPayment(context.Background(), "TR0011abc")
	if err != nil || !res.Completed() {
		t.Fatalf("QueryPayment: %+v, %v", res, err)
	}

	refund, err := c.Refund(context.Background(), payment.RefundRequest{
		PaymentID: "TR0011abc", TrxID: "BFD90JRLST", Amount: 499,
	})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refund.Status != payment.StatusRefunded || refund.RefundID != "RF1" {
		t.Errorf("unexpected refund %+v", refund)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := map[float64]string{
		0:         "0.00",
		10:        "10.00",
		99.5:      "99.50",
		1234.56:   "1234.56",
		0.1 + 0.2: "0.30",
	}
	for in, want := range tests {
		if got := FormatAmount(in); got != want {
			t.Errorf("FormatAmount(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestRefundNotCompletedReportsFailure(t *testing.T) {
	f := &fakeBkash{refundStatus: "Pending"}
	c := newTestClient(t, f)

	refund, err := c.Refund(context.Background(), payment.RefundRequest{
		PaymentID: "TR0011abc", TrxID: "BFD90JRLST", Amount: 499,
	})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refund.Status != payment.StatusFailed {
		t.Errorf("expected failed refund status, got %q", refund.Status)
	}
}
