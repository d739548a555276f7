// Package binance provides a minimal REST client for Binance spot market data.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Default configuration values.
const (
	DefaultBaseURL   = "https://api.binance.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10.0 // requests per second
	MaxAggTradeLimit = 1000
)

const aggTradesPath = "/api/v3/aggTrades"

// ErrTimeout is returned when a request times out, either locally or with
// an HTTP 408/504 from the server.
var ErrTimeout = errors.New("binance request timed out")

// APIError is a non-2xx response from Binance.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Msg        string `json:"msg"`
}

func (e *APIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("binance: status %d", e.StatusCode)
	}
	return fmt.Sprintf("binance: status %d: code %d: %s", e.StatusCode, e.Code, e.Msg)
}

// AggTrade is one aggregate trade as returned by /api/v3/aggTrades.
// Prices and quantities are kept as the decimal strings Binance sends.
type AggTrade struct {
	ID           int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
	Time         int64  `json:"T"` // ms
	IsBuyerMaker bool   `json:"m"`
	IsBestMatch  bool   `json:"M"`
}

// HTTPClient calls the Binance REST API. Each call is a single attempt;
// retry policy belongs to the caller.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *HTTPClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithRateLimit sets the request rate in requests per second.
// A non-positive value disables limiting.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *HTTPClient) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Binance REST client.
func NewHTTPClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAggTrades returns up to limit aggregate trades for symbol starting at fromID,
// in ascending id order. An empty result means no trades at or after fromID yet.
func (c *HTTPClient) GetAggTrades(ctx context.Context, symbol string, fromID int64, limit int) ([]AggTrade, error) {
	if symbol == "" {
		return nil, fmt.Errorf("binance: empty symbol")
	}
	if limit <= 0 || limit > MaxAggTradeLimit {
		return nil, fmt.Errorf("binance: limit %d out of range 1..%d", limit, MaxAggTradeLimit)
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("fromId", strconv.FormatInt(fromID, 10))
	q.Set("limit", strconv.Itoa(limit))

	var trades []AggTrade
	if err := c.get(ctx, aggTradesPath, q, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// get performs a single rate-limited GET and decodes the JSON body into result.
func (c *HTTPClient) get(ctx context.Context, path string, query url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := c.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransportError(ctx, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d", ErrTimeout, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// classifyTransportError maps client-side timeouts to ErrTimeout.
// Cancellation of the caller's context is returned as is.
func classifyTransportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("http request: %w", err)
}
