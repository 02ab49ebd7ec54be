// Package bkash talks to the bKash tokenized checkout API.
package bkash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"subscription_live/internal/config"
	"subscription_live/internal/payment"
	"subscription_live/internal/resilience"
)

const (
	Name = "bkash"

	successCode  = "0000"
	modeCheckout = "0011"
	intentSale   = "sale"
	currencyBDT  = "BDT"

	// a token is refreshed this long before bKash says it expires
	tokenLeeway = time.Minute
)

type Client struct {
	cfg     config.BkashConfig
	http    *http.Client
	breaker *resilience.CircuitBreaker

	attempts int
	delay    time.Duration
	now      func() time.Time

	mu           sync.Mutex
	idToken      string
	refreshToken string
	expiresAt    time.Time
}

func New(cfg config.BkashConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		cfg:      cfg,
		http:     httpClient,
		breaker:  resilience.NewCircuitBreaker(Name, 5, 30*time.Second),
		attempts: 3,
		delay:    500 * time.Millisecond,
		now:      time.Now,
	}
}

func (c *Client) Name() string { return Name }

// --- wire types ---

type apiStatus struct {
	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
	ErrorCode     string `json:"errorCode"`
	ErrorMessage  string `json:"errorMessage"`
}

func (s apiStatus) err() error {
	if s.ErrorCode != "" {
		return &payment.GatewayError{Gateway: Name, Code: s.ErrorCode, Message: s.ErrorMessage}
	}
	if s.StatusCode != "" && s.StatusCode != successCode {
		return &payment.GatewayError{Gateway: Name, Code: s.StatusCode, Message: s.StatusMessage}
	}
	return nil
}

type tokenResponse struct {
	apiStatus
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type createResponse struct {
	apiStatus
	PaymentID             string `json:"paymentID"`
	BkashURL              string `json:"bkashURL"`
	Amount                string `json:"amount"`
	TransactionStatus     string `json:"transactionStatus"`
	MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
}

type paymentResponse struct {
	apiStatus
	PaymentID             string `json:"paymentID"`
	TrxID                 string `json:"trxID"`
	TransactionStatus     string `json:"transactionStatus"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
	CustomerMsisdn        string `json:"customerMsisdn"`
	PayerReference        string `json:"payerReference"`
}

type refundResponse struct {
	apiStatus
	OriginalTrxID     string `json:"originalTrxID"`
	RefundTrxID       string `json:"refundTrxID"`
	TransactionStatus string `json:"transactionStatus"`
	Amount            string `json:"amount"`
}

// --- token management ---

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.idToken != "" && c.now().Add(tokenLeeway).Before(c.expiresAt) {
		return c.idToken, nil
	}

	if c.refreshToken != "" {
		if err := c.refreshLocked(ctx); err == nil {
			return c.idToken, nil
		} else {
			log.Printf("⚠️ bKash token refresh failed, requesting a new grant: %v", err)
		}
	}

	if err := c.grantLocked(ctx); err != nil {
		return "", err
	}
	return c.idToken, nil
}

func (c *Client) credentialHeaders() map[string]string {
	return map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	}
}

func (c *Client) grantLocked(ctx context.Context) error {
	body := map[string]string{
		"app_key":    c.cfg.AppKey,
		"app_secret": c.cfg.AppSecret,
	}
	var res tokenResponse
	if err := c.post(ctx, "/tokenized/checkout/token/grant", c.credentialHeaders(), body, &res); err != nil {
		return fmt.Errorf("bkash grant token: %w", err)
	}
	c.storeToken(res)
	log.Println("🔑 bKash token granted")
	return nil
}

func (c *Client) refreshLocked(ctx context.Context) error {
	body := map[string]string{
		"app_key":       c.cfg.AppKey,
		"app_secret":    c.cfg.AppSecret,
		"refresh_token": c.refreshToken,
	}
	var res tokenResponse
	if err := c.post(ctx, "/tokenized/checkout/token/refresh", c.credentialHeaders(), body, &res); err != nil {
		return fmt.Errorf("bkash refresh token: %w", err)
	}
	c.storeToken(res)
	return nil
}

func (c *Client) storeToken(res tokenResponse) {
	c.idToken = res.IDToken
	if res.RefreshToken != "" {
		c.refreshToken = res.RefreshToken
	}
	ttl := time.Duration(res.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	c.expiresAt = c.now().Add(ttl)
}

func (c *Client) authorized(ctx context.Context, path string, body any, out statusCarrier) error {
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}
	headers := map[string]string{
		"Authorization": tok,
		"X-APP-Key":     c.cfg.AppKey,
	}
	return c.post(ctx, path, headers, body, out)
}

// --- gateway operations ---

func (c *Client) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.Session, error) {
	callback := req.CallbackURL
	if callback == "" {
		callback = c.cfg.CallbackURL
	}
	payer := req.PayerRef
	if payer == "" {
		payer = req.Email
	}

	body := map[string]string{
		"mode":                  modeCheckout,
		"payerReference":        payer,
		"callbackURL":           callback,
		"amount":                FormatAmount(req.Amount),
		"currency":              currencyBDT,
		"intent":                intentSale,
		"merchantInvoiceNumber": req.OrderID,
	}

	var res createResponse
	if err := c.authorized(ctx, "/tokenized/checkout/create", body, &res); err != nil {
		return nil, fmt.Errorf("bkash create payment: %w", err)
	}

	log.Printf("💳 bKash payment created: %s (%s BDT) for order %s", res.PaymentID, res.Amount, req.OrderID)
	return &payment.Session{
		PaymentID:   res.PaymentID,
		RedirectURL: res.BkashURL,
		Status:      payment.StatusInitiated,
	}, nil
}

func (c *Client) ExecutePayment(ctx context.Context, paymentID string) (*payment.Result, error) {
	var res paymentResponse
	if err := c.authorized(ctx, "/tokenized/checkout/execute", map[string]string{"paymentID": paymentID}, &res); err != nil {
		return nil, fmt.Errorf("bkash execute payment: %w", err)
	}
	return res.result(), nil
}

func (c *Client) QueryPayment(ctx context.Context, paymentID string) (*payment.Result, error) {
	var res paymentResponse
	if err := c.authorized(ctx, "/tokenized/checkout/payment/status", map[string]string{"paymentID": paymentID}, &res); err != nil {
		return nil, fmt.Errorf("bkash query payment: %w", err)
	}
	return res.result(), nil
}

func (c *Client) Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	reason := req.Reason
	if reason == "" {
		reason = "refund"
	}
	body := map[string]string{
		"paymentID": req.PaymentID,
		"trxID":     req.TrxID,
		"amount":    FormatAmount(req.Amount),
		"sku":       "subscription",
		"reason":    reason,
	}

	var res refundResponse
	if err := c.authorized(ctx, "/tokenized/checkout/payment/refund", body, &res); err != nil {
		return nil, fmt.Errorf("bkash refund: %w", err)
	}

	amount, _ := decimal.NewFromString(res.Amount)
	status := payment.StatusFailed
	if strings.EqualFold(res.TransactionStatus, "Completed") {
		status = payment.StatusRefunded
	}
	log.Printf("💰 bKash refund %s for trx %s: %s", res.RefundTrxID, res.OriginalTrxID, res.TransactionStatus)
	return &payment.RefundResult{
		RefundID: res.RefundTrxID,
		Status:   status,
		Amount:   amount.InexactFloat64(),
	}, nil
}

func (r paymentResponse) result() *payment.Result {
	amount, _ := decimal.NewFromString(r.Amount)
	return &payment.Result{
		PaymentID: r.PaymentID,
		TrxID:     r.TrxID,
		Status:    mapStatus(r.TransactionStatus),
		Amount:    amount.InexactFloat64(),
		Payer:     r.CustomerMsisdn,
	}
}

func mapStatus(s string) string {
	switch strings.ToLower(s) {
	case "completed":
		return payment.StatusCompleted
	case "initiated", "inprogress", "authorized":
		return payment.StatusInitiated
	case "cancelled":
		return payment.StatusCancelled
	default:
		return payment.StatusFailed
	}
}

// FormatAmount renders an amount the way bKash expects it: two decimals, no grouping.
func FormatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(2)
}

// --- transport ---

type statusCarrier interface{ err() error }

// post sends a JSON request through the circuit breaker with retries on transport errors.
// Gateway business errors are returned as *payment.GatewayError without retrying.
func (c *Client) post(ctx context.Context, path string, headers map[string]string, body any, out statusCarrier) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + path

	return resilience.Retry(ctx, c.attempts, c.delay, func() error {
		return c.breaker.Execute(func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
			if err != nil {
				return resilience.Permanent(err)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json")
			for k, v := range headers {
				req.Header.Set(k, v)
			}

			resp, err := c.http.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return err
			}
			if resp.StatusCode >= 500 {
				return fmt.Errorf("bkash %s: server error %d", path, resp.StatusCode)
			}
			if err := json.Unmarshal(raw, out); err != nil {
				return resilience.Permanent(fmt.Errorf("bkash %s: decode (status %d): %w", path, resp.StatusCode, err))
			}
			if err := out.err(); err != nil {
				return resilience.Permanent(err)
			}
			if resp.StatusCode >= 400 {
				return resilience.Permanent(fmt.Errorf("bkash %s: unexpected status %d", path, resp.StatusCode))
			}
			return nil
		})
	})
}
