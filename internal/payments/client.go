package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cartloom/cartloom-golang/internal/apperrors"
	"github.com/cartloom/cartloom-golang/internal/money"
)

// Gateway is the surface the order flow consumes. Tests substitute fakes.
type Gateway interface {
	CreateIntent(ctx context.Context, amount money.Cents, currency string, metadata map[string]string) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
}

// Client talks to the processor's REST API. All amounts cross this boundary
// as minor units; the caller never sends or receives decimals.
type Client struct {
	// HTTPClient carries the request timeout that bounds every call, so a
	// slow processor can never wedge a checkout.
	HTTPClient *http.Client

	// Retry configuration for transport errors and 5xx responses.
	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger

	baseURL   string
	secretKey string
}

// NewClient builds a gateway client with default timeout and retry
// settings. baseURL has no trailing slash (e.g. https://api.stripe.com).
func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
		Logger:     slog.Default(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
	}
}

// CreateIntent registers a payment attempt with the processor and returns
// the intent id plus the client secret the browser needs to confirm it.
func (c *Client) CreateIntent(ctx context.Context, amount money.Cents, currency string, metadata map[string]string) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(int64(amount), 10))
	form.Set("currency", currency)
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	return c.doIntent(ctx, http.MethodPost, "/v1/payment_intents", form.Encode())
}

// RetrieveIntent fetches the current status and amount of an intent. Order
// creation re-verifies against this, never against client-supplied numbers.
func (c *Client) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	if id == "" {
		return nil, apperrors.New(apperrors.KindPaymentVerification, "Payment intent id is required")
	}
	return c.doIntent(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(id), "")
}

// gatewayError mirrors the processor's error envelope.
type gatewayError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) doIntent(ctx context.Context, method, path, form string) (*Intent, error) {
	var lastErr error

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff between attempts, abandoned if the
			// caller's context expires first.
			delay := c.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, apperrors.Wrap(apperrors.KindGateway, "Payment gateway request cancelled", ctx.Err())
			}
			c.Logger.Warn("retrying payment gateway request",
				"method", method, "path", path, "attempt", attempt+1, "last_error", lastErr.Error())
		}

		intent, retryable, err := c.attemptIntent(ctx, method, path, form)
		if err == nil {
			return intent, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

func (c *Client) attemptIntent(ctx context.Context, method, path, form string) (*Intent, bool, error) {
	var reqBody io.Reader
	if form != "" {
		reqBody = strings.NewReader(form)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.KindGateway, "Payment gateway request failed", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// Transport errors (connection refused, timeout) are retryable;
		// a timeout is failed-but-retryable, never a confirmed failure.
		return nil, true, apperrors.Wrap(apperrors.KindGateway, "Payment gateway unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, apperrors.Wrap(apperrors.KindGateway, "Payment gateway response unreadable", err)
	}

	switch {
	case resp.StatusCode < 300:
		var intent Intent
		if err := json.Unmarshal(raw, &intent); err != nil {
			return nil, false, apperrors.Wrap(apperrors.KindGateway, "Payment gateway returned malformed intent", err)
		}
		return &intent, false, nil

	case resp.StatusCode == http.StatusNotFound:
		// An unknown intent id is a caller problem, not a gateway outage.
		return nil, false, apperrors.New(apperrors.KindPaymentVerification, "Payment intent not found")

	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, apperrors.Newf(apperrors.KindGateway, "Payment gateway error (status %d)", resp.StatusCode)

	default:
		var ge gatewayError
		msg := fmt.Sprintf("Payment gateway rejected request (status %d)", resp.StatusCode)
		if err := json.Unmarshal(raw, &ge); err == nil && ge.Error.Message != "" {
			msg = "Payment gateway rejected request: " + ge.Error.Message
		}
		return nil, false, apperrors.New(apperrors.KindGateway, msg)
	}
}
