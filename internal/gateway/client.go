// Package gateway talks to the PhonePe standard checkout API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/NineNineAFK/verto/internal/cache"
	"github.com/NineNineAFK/verto/internal/domain"
	"github.com/NineNineAFK/verto/internal/logging"
	"github.com/NineNineAFK/verto/internal/metrics"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	EnvUAT  = "UAT"
	EnvProd = "PROD"

	uatBaseURL  = "https://api-preprod.phonepe.com/apis/pg-sandbox"
	prodBaseURL = "https://api.phonepe.com/apis/pg"
	uatAuthURL  = "https://api-preprod.phonepe.com/apis/pg-sandbox/v1/oauth/token"
	prodAuthURL = "https://api.phonepe.com/apis/identity-manager/v1/oauth/token"

	maxBodySize = 1 << 20
)

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%v: status %d: %s", domain.ErrGateway, e.StatusCode, string(e.Body))
}

func (e *APIError) Unwrap() error {
	return domain.ErrGateway
}

type Config struct {
	Env           string
	ClientID      string
	ClientSecret  string
	ClientVersion string
	Timeout       time.Duration

	// BaseURL and AuthURL override the environment's endpoints when set.
	BaseURL string
	AuthURL string
}

func (c Config) endpoints() (string, string) {
	base, auth := uatBaseURL, uatAuthURL
	if c.Env == EnvProd {
		base, auth = prodBaseURL, prodAuthURL
	}
	if c.BaseURL != "" {
		base = c.BaseURL
	}
	if c.AuthURL != "" {
		auth = c.AuthURL
	}
	return base, auth
}

type InitiateRequest struct {
	MerchantOrderID string
	AmountMinor     int64
	RedirectURL     string
}

type response struct {
	status int
	body   []byte
}

type Client struct {
	http    *http.Client
	baseURL string
	tokens  *tokenSource
	breaker *gobreaker.CircuitBreaker[*response]
	metrics *metrics.Metrics
}

// NewClient builds a gateway client. shared may be nil, in which case tokens are cached in
// process only.
func NewClient(cfg Config, shared cache.TokenCache, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	base, auth := cfg.endpoints()
	version := cfg.ClientVersion
	if version == "" {
		version = "1"
	}

	c := &Client{
		http:    httpClient,
		baseURL: base,
		metrics: m,
		tokens: &tokenSource{
			http:    httpClient,
			authURL: auth,
			form: url.Values{
				"client_id":      {cfg.ClientID},
				"client_secret":  {cfg.ClientSecret},
				"client_version": {version},
				"grant_type":     {"client_credentials"},
			},
			shared: shared,
			key:    cfg.ClientID,
			now:    time.Now,
		},
	}

	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "phonepe",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zap.L().Warn("gateway circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

// Token returns a valid access token, fetching a new one when the cached token is within
// RefreshMargin of expiry.
func (c *Client) Token(ctx context.Context) (string, error) {
	start := time.Now()
	tok, err := c.tokens.Token(ctx)
	c.metrics.GatewayCall("token", start, err)
	return tok, err
}

type payRequest struct {
	MerchantOrderID string      `json:"merchantOrderId"`
	Amount          int64       `json:"amount"`
	PaymentFlow     paymentFlow `json:"paymentFlow"`
}

type paymentFlow struct {
	Type         string       `json:"type"`
	MerchantURLs merchantURLs `json:"merchantUrls"`
}

type merchantURLs struct {
	RedirectURL string `json:"redirectUrl"`
}

// Initiate asks the gateway to start a checkout and returns its response body unchanged.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (json.RawMessage, error) {
	payload, err := json.Marshal(payRequest{
		MerchantOrderID: req.MerchantOrderID,
		Amount:          req.AmountMinor,
		PaymentFlow: paymentFlow{
			Type:         "PG_CHECKOUT",
			MerchantURLs: merchantURLs{RedirectURL: req.RedirectURL},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal pay request: %w", err)
	}

	start := time.Now()
	resp, err := c.call(ctx, http.MethodPost, "/checkout/v2/pay", payload)
	c.metrics.GatewayCall("pay", start, err)
	if err != nil {
		return nil, err
	}
	if !json.Valid(resp.body) {
		return nil, fmt.Errorf("%w: pay response is not JSON", domain.ErrGateway)
	}
	return json.RawMessage(resp.body), nil
}

type statusResponse struct {
	State          string `json:"state"`
	ErrorCode      string `json:"errorCode"`
	PaymentDetails []struct {
		TransactionID string `json:"transactionId"`
		Timestamp     int64  `json:"timestamp"`
		ErrorCode     string `json:"errorCode"`
	} `json:"paymentDetails"`
}

// QueryStatus fetches the gateway's authoritative state for a merchant order.
func (c *Client) QueryStatus(ctx context.Context, merchantOrderID string) (*domain.GatewayStatus, error) {
	path := fmt.Sprintf("/checkout/v2/order/%s/status", url.PathEscape(merchantOrderID))

	start := time.Now()
	resp, err := c.call(ctx, http.MethodGet, path, nil)
	c.metrics.GatewayCall("status", start, err)
	if err != nil {
		return nil, err
	}

	var sr statusResponse
	if err := json.Unmarshal(resp.body, &sr); err != nil {
		return nil, fmt.Errorf("%w: decode status response: %v", domain.ErrGateway, err)
	}

	status := &domain.GatewayStatus{State: sr.State, ErrorCode: sr.ErrorCode}
	if len(sr.PaymentDetails) > 0 {
		pd := sr.PaymentDetails[0]
		status.TransactionID = pd.TransactionID
		if pd.Timestamp > 0 {
			ts := time.UnixMilli(pd.Timestamp).UTC()
			status.Timestamp = &ts
		}
		if status.ErrorCode == "" {
			status.ErrorCode = pd.ErrorCode
		}
	}
	return status, nil
}

func (c *Client) call(ctx context.Context, method, path string, body []byte) (*response, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.do(ctx, method, path, token, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", domain.ErrGateway, err)
		}
		return nil, err
	}

	if resp.status == http.StatusUnauthorized {
		c.tokens.Invalidate(ctx)
	}
	if resp.status < 200 || resp.status >= 300 {
		logging.FromContext(ctx).Warn("gateway rejected request",
			zap.String("path", path),
			zap.Int("status", resp.status))
		return nil, &APIError{StatusCode: resp.status, Body: resp.body}
	}
	return resp, nil
}

// do returns an error only for failures that should count against the breaker: transport
// errors and 5xx answers.
func (c *Client) do(ctx context.Context, method, path, token string, body []byte) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrGateway, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "O-Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrGateway, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrGateway, err)
	}
	if resp.StatusCode >= 500 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: data}
	}
	return &response{status: resp.StatusCode, body: data}, nil
}
