// Package mpesa implements payment.Provider on the Safaricom Daraja API:
// OAuth client-credentials tokens, STK push (Lipa na M-Pesa Online), STK
// status queries and the asynchronous callback payloads.
package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xraph/learngate/payment"
)

// Base URLs for the two Daraja environments.
const (
	SandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	ProductionBaseURL = "https://api.safaricom.co.ke"

	DefaultTimeout = 30 * time.Second

	// TransactionTypePayBill is the STK transaction type for paybill numbers.
	TransactionTypePayBill = "CustomerPayBillOnline"
	// TransactionTypeBuyGoods is the STK transaction type for till numbers.
	TransactionTypeBuyGoods = "CustomerBuyGoodsOnline"

	providerName = "mpesa"

	pathOAuth    = "/oauth/v1/generate?grant_type=client_credentials"
	pathSTKPush  = "/mpesa/stkpush/v1/processrequest"
	pathSTKQuery = "/mpesa/stkpushquery/v1/query"
)

var (
	// ErrMissingCredentials is returned by NewClient when the consumer key,
	// consumer secret, short code or passkey is empty.
	ErrMissingCredentials = errors.New("mpesa: consumer key, consumer secret, short code and passkey are required")

	// ErrMissingCallbackURL is returned by NewClient without a callback URL.
	ErrMissingCallbackURL = errors.New("mpesa: callback url is required")
)

// Options controls how the client is configured.
type Options struct {
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string

	// Environment is "sandbox" (default) or "production". BaseURL, when set,
	// overrides it.
	Environment     string
	BaseURL         string
	TransactionType string

	HTTPClient *http.Client
	TokenCache TokenCache
	Logger     *slog.Logger

	// Now overrides the clock used for STK timestamps.
	Now func() time.Time
}

// Client talks to Daraja. It is safe for concurrent use.
type Client struct {
	consumerKey     string
	consumerSecret  string
	shortCode       string
	passkey         string
	callbackURL     string
	baseURL         string
	transactionType string

	client *http.Client
	tokens TokenCache
	logger *slog.Logger
	now    func() time.Time
}

var _ payment.Provider = (*Client)(nil)

// APIError is a non-2xx Daraja answer.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("mpesa: upstream status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("mpesa: upstream status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// NewClient constructs a client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.ConsumerKey) == "" ||
		strings.TrimSpace(opts.ConsumerSecret) == "" ||
		strings.TrimSpace(opts.ShortCode) == "" ||
		strings.TrimSpace(opts.Passkey) == "" {
		return nil, ErrMissingCredentials
	}
	if strings.TrimSpace(opts.CallbackURL) == "" {
		return nil, ErrMissingCallbackURL
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = SandboxBaseURL
		if strings.EqualFold(opts.Environment, "production") {
			baseURL = ProductionBaseURL
		}
	}
	txType := opts.TransactionType
	if txType == "" {
		txType = TransactionTypePayBill
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	tokens := opts.TokenCache
	if tokens == nil {
		tokens = NewMemoryTokenCache()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		consumerKey:     opts.ConsumerKey,
		consumerSecret:  opts.ConsumerSecret,
		shortCode:       opts.ShortCode,
		passkey:         opts.Passkey,
		callbackURL:     opts.CallbackURL,
		baseURL:         baseURL,
		transactionType: txType,
		client:          client,
		tokens:          tokens,
		logger:          logger,
		now:             now,
	}, nil
}

// Name implements payment.Provider.
func (c *Client) Name() string { return providerName }

// Validate implements payment.Provider.
func (c *Client) Validate(phone string, amount float64) (string, error) {
	return Validate(phone, amount)
}

// postJSON sends an authorized JSON request and decodes a 2xx body into out.
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(in); err != nil {
		return fmt.Errorf("mpesa: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("mpesa: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	status, body, err := c.do(req)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		// Token revoked or expired early; the next call fetches a new one.
		_ = c.tokens.Invalidate(ctx) //nolint:errcheck // best-effort cache eviction
	}
	if status < 200 || status >= 300 {
		return apiError(status, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("mpesa: decode response: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("mpesa: request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck // response body close
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("mpesa: read response: %w", err)
	}

	c.logger.Debug("mpesa response",
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)
	return resp.StatusCode, body, nil
}

func apiError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}
	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil {
		apiErr.Code = parsed.ErrorCode
		if parsed.ErrorMessage != "" {
			apiErr.Message = parsed.ErrorMessage
		}
	}
	return apiErr
}
