package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/beansync/beansync/internal/model"
)

const (
	defaultBaseURL = "https://api.pocketsmith.com/v2"
	perPage        = 100
	maxRetries     = 3
	lookupCacheCap = 512
)

// ClientConfig configures the HTTP client. APIKey is required.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	// RequestsPerSecond caps the outbound request rate. Zero means the
	// default of 2.
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// HTTPClient talks to the ledger service over REST. Requests pass a
// token bucket; 429 and 5xx responses are retried up to three times,
// honouring Retry-After. Account and category lookups go through small
// LRU caches since pull and push resolve names for every diff line.
type HTTPClient struct {
	base    string
	apiKey  string
	httpc   *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	userID     int64
	accounts   *lru.Cache[int64, accountCached]
	categories *lru.Cache[int64, categoryCached]
}

type accountCached struct {
	name string
}

type categoryCached struct {
	title string
}

// NewHTTPClient builds a client against the configured service.
func NewHTTPClient(cfg ClientConfig) (*HTTPClient, error) {
	if cfg.APIKey == "" {
		return nil, &Error{Op: "configure", Err: fmt.Errorf("API key is required")}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	accounts, err := lru.New[int64, accountCached](lookupCacheCap)
	if err != nil {
		return nil, &Error{Op: "configure", Err: err}
	}
	categories, err := lru.New[int64, categoryCached](lookupCacheCap)
	if err != nil {
		return nil, &Error{Op: "configure", Err: err}
	}

	return &HTTPClient{
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpc:      cfg.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:     cfg.Logger,
		accounts:   accounts,
		categories: categories,
	}, nil
}

// CurrentUser fetches and memoizes the authenticated user.
func (c *HTTPClient) CurrentUser(ctx context.Context) (User, error) {
	body, _, err := c.do(ctx, http.MethodGet, c.base+"/me", nil, "current user")
	if err != nil {
		return User{}, err
	}
	var dto userDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return User{}, &Error{Op: "current user", Err: fmt.Errorf("malformed response: %w", err)}
	}
	c.userID = dto.ID
	return User{ID: dto.ID, Login: dto.Login}, nil
}

func (c *HTTPClient) currentUserID(ctx context.Context) (int64, error) {
	if c.userID != 0 {
		return c.userID, nil
	}
	u, err := c.CurrentUser(ctx)
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}

// Accounts lists the user's accounts and primes the lookup cache.
func (c *HTTPClient) Accounts(ctx context.Context) ([]model.Account, error) {
	uid, err := c.currentUserID(ctx)
	if err != nil {
		return nil, err
	}
	body, _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/users/%d/accounts", c.base, uid), nil, "list accounts")
	if err != nil {
		return nil, err
	}
	var dtos []accountDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, &Error{Op: "list accounts", Err: fmt.Errorf("malformed response: %w", err)}
	}
	out := make([]model.Account, 0, len(dtos))
	for _, dto := range dtos {
		acct := dto.toModel()
		c.accounts.Add(acct.ID, accountCached{name: acct.DisplayName})
		out = append(out, acct)
	}
	return out, nil
}

// Categories lists the user's categories, flattening the forest.
func (c *HTTPClient) Categories(ctx context.Context) ([]model.Category, error) {
	uid, err := c.currentUserID(ctx)
	if err != nil {
		return nil, err
	}
	body, _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/users/%d/categories", c.base, uid), nil, "list categories")
	if err != nil {
		return nil, err
	}
	var dtos []categoryDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, &Error{Op: "list categories", Err: fmt.Errorf("malformed response: %w", err)}
	}
	cats := flattenCategories(dtos, nil)
	for _, cat := range cats {
		c.categories.Add(cat.ID, categoryCached{title: cat.Title})
	}
	return cats, nil
}

// AccountName renders an account id from the lookup cache, fetching
// the account list on a miss. Unknown ids render empty.
func (c *HTTPClient) AccountName(ctx context.Context, id int64) string {
	if cached, ok := c.accounts.Get(id); ok {
		return cached.name
	}
	if _, err := c.Accounts(ctx); err != nil {
		return ""
	}
	cached, _ := c.accounts.Get(id)
	return cached.name
}

// CategoryTitle renders a category id from the lookup cache, fetching
// the category forest on a miss. Unknown ids render empty.
func (c *HTTPClient) CategoryTitle(ctx context.Context, id int64) string {
	if cached, ok := c.categories.Get(id); ok {
		return cached.title
	}
	if _, err := c.Categories(ctx); err != nil {
		return ""
	}
	cached, _ := c.categories.Get(id)
	return cached.title
}

// Transactions lists transactions matching the query, following the
// Link rel="next" chain until exhausted.
func (c *HTTPClient) Transactions(ctx context.Context, q TransactionQuery) ([]model.Transaction, error) {
	uid, err := c.currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("per_page", strconv.Itoa(perPage))
	if !q.UpdatedSince.IsZero() {
		params.Set("updated_since", q.UpdatedSince.UTC().Format(time.RFC3339))
	}
	if !q.Window.From.IsZero() {
		params.Set("start_date", q.Window.From.String())
	}
	if !q.Window.To.IsZero() {
		params.Set("end_date", q.Window.To.String())
	}
	if q.AccountID != 0 {
		params.Set("account_id", strconv.FormatInt(q.AccountID, 10))
	}

	next := fmt.Sprintf("%s/users/%d/transactions?%s", c.base, uid, params.Encode())
	var out []model.Transaction
	for next != "" {
		body, header, err := c.do(ctx, http.MethodGet, next, nil, "list transactions")
		if err != nil {
			return nil, err
		}
		var dtos []transactionDTO
		if err := json.Unmarshal(body, &dtos); err != nil {
			return nil, &Error{Op: "list transactions", Err: fmt.Errorf("malformed response: %w", err)}
		}
		for _, dto := range dtos {
			txn, err := dto.toModel()
			if err != nil {
				return nil, &Error{Op: "list transactions", TxnID: dto.ID, Err: err}
			}
			out = append(out, txn)
		}
		next = linkNext(header.Get("Link"))
	}
	return out, nil
}

// Transaction fetches a single transaction by id.
func (c *HTTPClient) Transaction(ctx context.Context, id int64) (model.Transaction, error) {
	body, _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/transactions/%d", c.base, id), nil, "get transaction")
	if err != nil {
		return model.Transaction{}, err
	}
	var dto transactionDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return model.Transaction{}, &Error{Op: "get transaction", TxnID: id, Err: fmt.Errorf("malformed response: %w", err)}
	}
	txn, err := dto.toModel()
	if err != nil {
		return model.Transaction{}, &Error{Op: "get transaction", TxnID: id, Err: err}
	}
	return txn, nil
}

// UpdateTransaction writes the named fields and returns the remote's
// post-update state.
func (c *HTTPClient) UpdateTransaction(ctx context.Context, id int64, u Update) (model.Transaction, error) {
	if u.Empty() {
		return c.Transaction(ctx, id)
	}

	payload := updatePayload{
		Payee:       u.Payee,
		Note:        u.Note,
		Labels:      u.Labels,
		CategoryID:  u.CategoryID,
		NeedsReview: u.NeedsReview,
		IsTransfer:  u.IsTransfer,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return model.Transaction{}, &Error{Op: "update transaction", TxnID: id, Err: err}
	}

	c.logger.Debug("updating remote transaction",
		zap.Int64("txn", id), zap.ByteString("payload", data))

	body, _, err := c.do(ctx, http.MethodPut, fmt.Sprintf("%s/transactions/%d", c.base, id), data, "update transaction")
	if err != nil {
		if re, ok := err.(*Error); ok {
			re.TxnID = id
		}
		return model.Transaction{}, err
	}
	var dto transactionDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return model.Transaction{}, &Error{Op: "update transaction", TxnID: id, Err: fmt.Errorf("malformed response: %w", err)}
	}
	txn, err := dto.toModel()
	if err != nil {
		return model.Transaction{}, &Error{Op: "update transaction", TxnID: id, Err: err}
	}
	return txn, nil
}

// do issues one request through the rate limiter, retrying 429 and 5xx
// responses up to maxRetries. Auth rejections and other 4xx fail
// immediately.
func (c *HTTPClient) do(ctx context.Context, method, rawURL string, body []byte, op string) ([]byte, http.Header, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, &Error{Op: op, Err: err}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, nil, &Error{Op: op, Err: err}
		}
		req.Header.Set("X-Developer-Key", c.apiKey)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			if attempt < maxRetries {
				if werr := sleepCtx(ctx, backoff(attempt)); werr != nil {
					return nil, nil, &Error{Op: op, Err: werr}
				}
				continue
			}
			return nil, nil, &Error{Op: op, Err: err}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, nil, &Error{Op: op, Err: readErr}
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, resp.Header, nil

		case resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries:
			wait := retryAfter(resp.Header, backoff(attempt))
			c.logger.Warn("rate limited by remote",
				zap.String("op", op), zap.Duration("wait", wait), zap.Int("attempt", attempt+1))
			if werr := sleepCtx(ctx, wait); werr != nil {
				return nil, nil, &Error{Op: op, Err: werr}
			}

		case resp.StatusCode >= 500 && attempt < maxRetries:
			c.logger.Warn("remote server error, retrying",
				zap.String("op", op), zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt+1))
			if werr := sleepCtx(ctx, backoff(attempt)); werr != nil {
				return nil, nil, &Error{Op: op, Err: werr}
			}

		default:
			return nil, nil, &Error{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
		}
	}
}

// retryAfter reads a Retry-After header as either delay seconds or an
// HTTP date, falling back to the given default.
func retryAfter(h http.Header, fallback time.Duration) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return fallback
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * 500 * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// linkNext extracts the rel="next" URL from a Link header, or empty.
func linkNext(header string) string {
	for _, part := range strings.Split(header, ",") {
		fields := strings.Split(strings.TrimSpace(part), ";")
		if len(fields) != 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(fields[0]), "<>")
		rel := strings.TrimSpace(fields[1])
		rel = strings.TrimPrefix(rel, "rel=")
		rel = strings.Trim(rel, `"`)
		if rel == "next" && (strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")) {
			return target
		}
	}
	return ""
}
