package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.vk.com/method/"

	// GroupsBatchSize is the groups.getById identifier limit per call.
	GroupsBatchSize = 500
	// WallPageSize is the wall.get / wall.getComments page limit.
	WallPageSize = 100
)

// API is the surface workers consume. Tests substitute a mock.
type API interface {
	ResolveScreenName(ctx context.Context, name string) (*ResolvedObject, error)
	GroupsByIDs(ctx context.Context, ids []string) ([]GroupInfo, error)
	WallGet(ctx context.Context, ownerID int64, offset, count int) (*WallPage, error)
	WallGetComments(ctx context.Context, ownerID, postID int64, offset, count int) (*CommentsPage, error)
}

// Client calls the VK JSON API. Tokens are rotated round-robin and each
// token has its own limiter so the pool's combined budget scales with the
// number of tokens.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     []string
	limiters   []*rate.Limiter
	version    string
	next       atomic.Uint64
	maxRetries int
}

type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (used in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries overrides the retry budget for throttled requests.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBaseURL points the client at a different API host (used in tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") + "/" }
}

func NewClient(tokens []string, version string, rps float64, opts ...Option) (*Client, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("vk: no access tokens provided")
	}
	if version == "" {
		version = "5.199"
	}
	if rps <= 0 {
		rps = 3
	}

	limiters := make([]*rate.Limiter, len(tokens))
	for i := range tokens {
		limiters[i] = rate.NewLimiter(rate.Limit(rps), 1)
	}

	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		tokens:     tokens,
		limiters:   limiters,
		version:    version,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ResolveScreenName maps a screen name (or short URL slug) to a VK object.
// Returns nil without error when the name does not exist; VK responds with
// an empty object in that case.
func (c *Client) ResolveScreenName(ctx context.Context, name string) (*ResolvedObject, error) {
	name = strings.TrimSpace(name)
	var out ResolvedObject
	err := c.call(ctx, "utils.resolveScreenName", url.Values{"screen_name": {name}}, &out)
	if err != nil {
		return nil, err
	}
	if out.Type == "" {
		return nil, nil
	}
	return &out, nil
}

// GroupsByIDs fetches community info for up to GroupsBatchSize identifiers
// (numeric ids or screen names) in one call.
func (c *Client) GroupsByIDs(ctx context.Context, ids []string) ([]GroupInfo, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > GroupsBatchSize {
		return nil, fmt.Errorf("vk: groups.getById accepts at most %d ids, got %d", GroupsBatchSize, len(ids))
	}
	params := url.Values{
		"group_ids": {strings.Join(ids, ",")},
		"fields":    {"members_count,description"},
	}
	// Since 5.81 the response is wrapped in a "groups" object.
	var out struct {
		Groups []GroupInfo `json:"groups"`
	}
	if err := c.call(ctx, "groups.getById", params, &out); err != nil {
		return nil, err
	}
	return out.Groups, nil
}

// WallGet fetches one page of a community wall. ownerID follows the VK
// convention: negative for groups.
func (c *Client) WallGet(ctx context.Context, ownerID int64, offset, count int) (*WallPage, error) {
	if count <= 0 || count > WallPageSize {
		count = WallPageSize
	}
	params := url.Values{
		"owner_id": {strconv.FormatInt(ownerID, 10)},
		"offset":   {strconv.Itoa(offset)},
		"count":    {strconv.Itoa(count)},
	}
	var out WallPage
	if err := c.call(ctx, "wall.get", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WallGetComments fetches one page of comments for a post.
func (c *Client) WallGetComments(ctx context.Context, ownerID, postID int64, offset, count int) (*CommentsPage, error) {
	if count <= 0 || count > WallPageSize {
		count = WallPageSize
	}
	params := url.Values{
		"owner_id": {strconv.FormatInt(ownerID, 10)},
		"post_id":  {strconv.FormatInt(postID, 10)},
		"offset":   {strconv.Itoa(offset)},
		"count":    {strconv.Itoa(count)},
	}
	var out CommentsPage
	if err := c.call(ctx, "wall.getComments", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call performs one API request with token rotation, rate limiting and a
// bounded retry loop for throttling errors.
func (c *Client) call(ctx context.Context, method string, params url.Values, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// VK throttling clears quickly; a short growing pause is enough.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 400 * time.Millisecond):
			}
		}

		err := c.doOnce(ctx, method, params, result)
		if err == nil {
			return nil
		}
		lastErr = err

		apiErr, ok := err.(*APIError)
		if !ok || !apiErr.Retryable() {
			return err
		}
	}
	return fmt.Errorf("vk: %s exhausted retries: %w", method, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method string, params url.Values, result interface{}) error {
	idx := int(c.next.Add(1)-1) % len(c.tokens)
	if err := c.limiters[idx].Wait(ctx); err != nil {
		return err
	}

	form := url.Values{}
	for k, vs := range params {
		form[k] = vs
	}
	form.Set("access_token", c.tokens[idx])
	form.Set("v", c.version)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+method, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "vkwatch/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vk: %s request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("vk: %s status %s", method, resp.Status)
	}

	var envelope struct {
		Error    *APIError       `json:"error"`
		Response json.RawMessage `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("vk: decode %s: %w", method, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if result != nil && len(envelope.Response) > 0 {
		if err := json.Unmarshal(envelope.Response, result); err != nil {
			return fmt.Errorf("vk: unmarshal %s response: %w", method, err)
		}
	}
	return nil
}
