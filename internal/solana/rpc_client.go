package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"solana-swap-feed/internal/observability"
)

// DefaultTimeout bounds a single HTTP attempt.
const DefaultTimeout = 30 * time.Second

// RetryPolicy controls retries of transport failures, 429 and 5xx responses.
// JSON-RPC errors are never retried.
type RetryPolicy struct {
	MaxRetries   int // 0 disables retries
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy performs a single attempt; callers opt in to retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   0,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
}

func (p RetryPolicy) next(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * p.Multiplier)
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// HTTPClient is a Solana HTTP JSON-RPC 2.0 client.
type HTTPClient struct {
	endpoint  string
	client    *http.Client
	retry     RetryPolicy
	requestID atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.client.Timeout = d }
}

// WithRetryPolicy replaces the retry policy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *HTTPClient) { c.retry = p }
}

// WithMaxRetries sets how many times a failed attempt is repeated.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) { c.retry.MaxRetries = n }
}

// WithRetryDelay sets the delay before the first retry.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.retry.InitialDelay = d }
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) { c.client = client }
}

// NewHTTPClient creates a Solana RPC client for endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
		retry:    DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.MaxRetries < 0 {
		c.retry.MaxRetries = 0
	}
	if c.retry.Multiplier < 1 {
		c.retry.Multiplier = 1
	}
	if c.retry.MaxDelay < c.retry.InitialDelay {
		c.retry.MaxDelay = c.retry.InitialDelay
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

// rpcError is an error object returned by the node.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// statusError is a non-200 HTTP response.
type statusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func (e *statusError) temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// call sends one JSON-RPC request, retrying per the client's policy.
func (c *HTTPClient) call(ctx context.Context, method string, params []any, result any) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retry.InitialDelay
	for attempt := 0; ; attempt++ {
		err := c.attempt(ctx, body, result)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt >= c.retry.MaxRetries || ctx.Err() != nil {
			if attempt > 0 {
				return fmt.Errorf("%s failed after %d attempts: %w", method, attempt+1, err)
			}
			return err
		}

		wait := delay
		var se *statusError
		if errors.As(err, &se) && se.RetryAfter > wait {
			wait = min(se.RetryAfter, c.retry.MaxDelay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay = c.retry.next(delay)
	}
}

func (c *HTTPClient) attempt(ctx context.Context, body []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &statusError{
			Code:       resp.StatusCode,
			Body:       string(snippet),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return &decodeError{err: err}
		}
	}
	return nil
}

// decodeError is a result that does not match the expected shape. It is not retried.
type decodeError struct{ err error }

func (e *decodeError) Error() string { return "unmarshal result: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var (
		re *rpcError
		de *decodeError
		se *statusError
	)
	switch {
	case errors.As(err, &re), errors.As(err, &de):
		return false
	case errors.As(err, &se):
		return se.temporary()
	default:
		return true
	}
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

var _ TokenAccountSource = (*HTTPClient)(nil)

type programAccountsConfig struct {
	Encoding string          `json:"encoding"`
	Filters  []accountFilter `json:"filters"`
}

type accountFilter struct {
	DataSize int           `json:"dataSize,omitempty"`
	Memcmp   *memcmpFilter `json:"memcmp,omitempty"`
}

type memcmpFilter struct {
	Offset int    `json:"offset"`
	Bytes  string `json:"bytes"`
}

// GetTokenAccountsByMint lists all SPL token accounts of a mint via getProgramAccounts.
// Filtering happens server-side: token account size and mint at offset 0.
func (c *HTTPClient) GetTokenAccountsByMint(ctx context.Context, mint string) ([]TokenAccount, error) {
	params := []any{
		TokenProgramID,
		programAccountsConfig{
			Encoding: "jsonParsed",
			Filters: []accountFilter{
				{DataSize: TokenAccountSize},
				{Memcmp: &memcmpFilter{Offset: 0, Bytes: mint}},
			},
		},
	}

	var result []programAccount
	if err := c.call(ctx, "getProgramAccounts", params, &result); err != nil {
		return nil, fmt.Errorf("get token accounts for mint %s: %w", mint, err)
	}

	accounts := make([]TokenAccount, 0, len(result))
	for _, r := range result {
		acc, err := r.tokenAccount()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

// programAccount is one jsonParsed entry of getProgramAccounts on the token program.
type programAccount struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Data struct {
			Parsed struct {
				Info struct {
					Mint        string `json:"mint"`
					Owner       string `json:"owner"`
					TokenAmount struct {
						Amount   string `json:"amount"`
						Decimals int    `json:"decimals"`
					} `json:"tokenAmount"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"account"`
}

func (p programAccount) tokenAccount() (TokenAccount, error) {
	info := p.Account.Data.Parsed.Info
	amount, err := strconv.ParseUint(info.TokenAmount.Amount, 10, 64)
	if err != nil {
		return TokenAccount{}, fmt.Errorf("parse amount of token account %s: %w", p.Pubkey, err)
	}
	return TokenAccount{
		Pubkey:   p.Pubkey,
		Owner:    info.Owner,
		Mint:     info.Mint,
		Amount:   amount,
		Decimals: info.TokenAmount.Decimals,
	}, nil
}
