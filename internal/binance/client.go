package binance

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/coachpo/orderdesk/errs"
	"github.com/coachpo/orderdesk/internal/observability"
)

const (
	apiKeyHeader = "X-MBX-APIKEY"

	// Exchange-level error codes that require special handling.
	codeTooManyRequests  = -1003
	codeTimestampOutside = -1021
	codeFilterFailure    = -1013
	codeNewOrderRejected = -2010
	codeNoSuchOrder      = -2013
)

// Client is the signed REST protocol client. Every request is paced through a
// shared rate limiter and transient failures are retried with a fresh
// timestamp and signature per attempt.
type Client struct {
	baseURL    string
	apiKey     string
	signer     *Signer
	clock      *Clock
	retryer    *Retryer
	limiter    *rate.Limiter
	httpClient *http.Client
	recvWindow time.Duration
}

// NewClient constructs a Client for the given REST endpoint and credentials.
func NewClient(baseURL, apiKey, apiSecret string, recvWindow, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		signer:     NewSigner(apiSecret),
		clock:      NewClock(),
		retryer:    NewRetryer(),
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		httpClient: &http.Client{Timeout: timeout},
		recvWindow: recvWindow,
	}
}

// Clock exposes the exchange-adjusted clock.
func (c *Client) Clock() *Clock { return c.clock }

// SyncClock measures the offset against the exchange server time.
func (c *Client) SyncClock(ctx context.Context) error {
	return c.clock.Sync(ctx, c)
}

// ServerTime fetches the exchange server time in epoch milliseconds.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	var resp serverTimeResponse
	if err := c.Get(ctx, "/api/v3/time", nil, &resp); err != nil {
		return 0, err
	}
	return resp.ServerTime, nil
}

// Get performs an unsigned GET request.
func (c *Client) Get(ctx context.Context, path string, params map[string]string, out any) error {
	return c.retryer.Do(ctx, "GET "+path, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, path, CanonicalQuery(params), false, out)
	})
}

// GetSigned performs a signed GET request.
func (c *Client) GetSigned(ctx context.Context, path string, params map[string]string, out any) error {
	return c.doSigned(ctx, http.MethodGet, path, params, out)
}

// PostSigned performs a signed POST request.
func (c *Client) PostSigned(ctx context.Context, path string, params map[string]string, out any) error {
	return c.doSigned(ctx, http.MethodPost, path, params, out)
}

// DeleteSigned performs a signed DELETE request.
func (c *Client) DeleteSigned(ctx context.Context, path string, params map[string]string, out any) error {
	return c.doSigned(ctx, http.MethodDelete, path, params, out)
}

// PutSigned performs a signed PUT request.
func (c *Client) PutSigned(ctx context.Context, path string, params map[string]string, out any) error {
	return c.doSigned(ctx, http.MethodPut, path, params, out)
}

// doSigned signs and retries a request. The timestamp and signature are
// rebuilt on every attempt so retried requests never reuse a stale timestamp,
// and a timestamp rejection triggers a clock resync before the next attempt.
func (c *Client) doSigned(ctx context.Context, method, path string, params map[string]string, out any) error {
	return c.retryer.Do(ctx, method+" "+path, func(ctx context.Context) error {
		query := c.signer.SignedQuery(params, c.clock.AdjustedNow(), c.recvWindow.Milliseconds())
		err := c.do(ctx, method, path, query, true, out)
		if err != nil && errs.Canonical(err) == errs.CanonicalClockSkew {
			if serr := c.SyncClock(ctx); serr != nil {
				observability.Log().Warn("clock resync failed",
					observability.F("error", serr.Error()))
			}
		}
		return err
	})
}

func (c *Client) do(ctx context.Context, method, path, query string, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errs.New("binance", errs.CodeNetwork,
			errs.WithMessage("request pacing interrupted"), errs.WithCause(err))
	}

	endpoint := c.baseURL + path
	if query != "" {
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return errs.New("binance", errs.CodeInvalid,
			errs.WithMessage("build request"), errs.WithCause(err))
	}
	if signed {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	observability.Log().Debug("rest request",
		observability.F("method", method),
		observability.F("path", path),
		observability.F("query", RedactSignature(query)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.New("binance", errs.CodeNetwork,
			errs.WithMessage("execute request"), errs.WithCause(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.New("binance", errs.CodeNetwork,
			errs.WithMessage("read response body"), errs.WithCause(err))
	}

	if resp.StatusCode >= 400 {
		return classifyAPIError(resp.StatusCode, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.New("binance", errs.CodeExchange,
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage("decode response"), errs.WithCause(err))
	}
	return nil
}

// classifyAPIError maps an HTTP failure plus the exchange error body into a
// structured error. HTTP 429/418 and 5xx are retriable; exchange codes refine
// the canonical outcome used by the order service.
func classifyAPIError(status int, body []byte) error {
	var apiErr apiErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	opts := []errs.Option{
		errs.WithHTTP(status),
		errs.WithExchangeCode(apiErr.Code),
		errs.WithRawMessage(apiErr.Msg),
	}

	switch apiErr.Code {
	case codeTimestampOutside:
		return errs.New("binance", errs.CodeClockSkew, append(opts,
			errs.WithCanonicalCode(errs.CanonicalClockSkew),
			errs.WithMessage("request timestamp outside recvWindow"))...)
	case codeTooManyRequests:
		return errs.New("binance", errs.CodeRateLimited, append(opts,
			errs.WithCanonicalCode(errs.CanonicalRateLimited),
			errs.WithMessage("request rate limit exceeded"))...)
	case codeFilterFailure:
		return errs.New("binance", errs.CodeInvalid, append(opts,
			errs.WithCanonicalCode(errs.CanonicalFilterViolation),
			errs.WithMessage("order rejected by trading-rule filter"))...)
	case codeNoSuchOrder:
		return errs.New("binance", errs.CodeNotFound, append(opts,
			errs.WithCanonicalCode(errs.CanonicalOrderNotFound),
			errs.WithMessage("order does not exist on the exchange"))...)
	case codeNewOrderRejected:
		lower := strings.ToLower(apiErr.Msg)
		switch {
		case strings.Contains(lower, "insufficient balance"):
			return errs.New("binance", errs.CodeExchange, append(opts,
				errs.WithCanonicalCode(errs.CanonicalInsufficientBalance),
				errs.WithMessage("account balance insufficient for order"))...)
		case strings.Contains(lower, "duplicate"):
			return errs.New("binance", errs.CodeConflict, append(opts,
				errs.WithCanonicalCode(errs.CanonicalDuplicateOrder),
				errs.WithMessage("client order id already submitted"))...)
		}
		return errs.New("binance", errs.CodeExchange, append(opts,
			errs.WithMessage("order rejected by exchange"))...)
	}

	switch {
	case status == http.StatusTooManyRequests || status == http.StatusTeapot:
		return errs.New("binance", errs.CodeRateLimited, append(opts,
			errs.WithCanonicalCode(errs.CanonicalRateLimited),
			errs.WithMessage("request rate limit exceeded"))...)
	case status >= 500:
		return errs.New("binance", errs.CodeUnavailable, append(opts,
			errs.WithMessage("exchange temporarily unavailable"))...)
	default:
		return errs.New("binance", errs.CodeExchange, append(opts,
			errs.WithMessage("request rejected by exchange"))...)
	}
}
