package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"cartpilot/internal"
	"cartpilot/internal/config"
)

const maxAttempts = 5

var ErrMissingToken = errors.New("missing RETAILER_API_TOKEN")

// Client talks to the retailer aggregation API. Every source gets its own
// rate limiter.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	defaultRate int

	mu       sync.Mutex
	limiters map[string]*RateLimiter
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

type productsPayload struct {
	Products []map[string]any `json:"products"`
	ScrollID *string          `json:"scrollId"`
	Total    *int             `json:"total"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		baseURL:     cfg.RetailerAPIBaseURL,
		token:       cfg.RetailerAPIToken,
		httpClient:  &http.Client{Timeout: time.Duration(cfg.RetailerTimeoutMs) * time.Millisecond},
		defaultRate: cfg.RetailerRateLimitRPS,
		limiters:    map[string]*RateLimiter{},
	}
}

func (c *Client) Configured() bool {
	return strings.TrimSpace(c.baseURL) != "" && strings.TrimSpace(c.token) != ""
}

func (c *Client) limiterFor(source string) *RateLimiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.limiters[source]; ok {
		return l
	}
	rps := c.defaultRate
	if v, ok := DefaultRateLimits[source]; ok {
		rps = v
	}
	l := NewRateLimiter(rps)
	c.limiters[source] = l
	return l
}

// SearchProducts lists one source's products for a category.
func (c *Client) SearchProducts(ctx context.Context, source, category string, limit int) ([]internal.CandidateItem, error) {
	params := map[string]string{"source": source, "category": category}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	body, err := c.fetchJSON(ctx, source, "products/search", params)
	if err != nil {
		return nil, err
	}
	var payload productsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return toCandidates(payload.Products, source), nil
}

// ScrollAll pages through the full product feed. A non-empty updatedSince
// limits it to products changed after that RFC3339 time.
func (c *Client) ScrollAll(ctx context.Context, updatedSince string) ([]internal.CandidateItem, error) {
	all := make([]internal.CandidateItem, 0)
	seen := map[string]struct{}{}
	var scrollID string

	for {
		query := map[string]string{"updatedSince": updatedSince}
		if scrollID != "" {
			query["scrollId"] = scrollID
		}

		body, err := c.fetchJSON(ctx, "", "product/scroll", query)
		if err != nil {
			return nil, err
		}

		var payload productsPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}
		all = append(all, toCandidates(payload.Products, "")...)

		if payload.ScrollID == nil || *payload.ScrollID == "" || len(payload.Products) == 0 {
			break
		}
		if _, ok := seen[*payload.ScrollID]; ok {
			break
		}
		seen[*payload.ScrollID] = struct{}{}
		scrollID = *payload.ScrollID
	}

	return all, nil
}

func (c *Client) fetchJSON(ctx context.Context, source, endpoint string, params map[string]string) ([]byte, error) {
	if strings.TrimSpace(c.token) == "" {
		return nil, ErrMissingToken
	}

	baseURL := strings.TrimRight(c.baseURL, "/") + "/"
	u, err := url.Parse(baseURL + endpoint)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	limiter := c.limiterFor(source)
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				if err := sleepCtx(ctx, backoff); err != nil {
					return nil, err
				}
				lastErr = fmt.Errorf("retailer api status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("retailer api error: status=%d body=%s", resp.StatusCode, string(body))
		}

		var apiResp apiResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, err
		}
		if !apiResp.Success {
			return nil, fmt.Errorf("retailer api unsuccessful: %s %s", apiResp.Message, string(apiResp.Errors))
		}
		return apiResp.Data, nil
	}

	if lastErr == nil {
		lastErr = errors.New("retailer request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func toCandidates(raw []map[string]any, source string) []internal.CandidateItem {
	out := make([]internal.CandidateItem, 0, len(raw))
	for _, r := range raw {
		item, err := toCandidate(r, source)
		if err != nil {
			continue
		}
		out = append(out, item)
	}
	return out
}

func toCandidate(raw map[string]any, source string) (internal.CandidateItem, error) {
	name := firstString(raw, "name", "title")
	if name == "" {
		return internal.CandidateItem{}, errors.New("empty name")
	}
	id := firstString(raw, "id", "sku", "itemId")
	if id == "" {
		if n, ok := toFloat(raw["id"]); ok {
			id = strconv.FormatInt(int64(n), 10)
		}
	}
	if id == "" {
		return internal.CandidateItem{}, errors.New("missing id")
	}
	price, ok := toFloat(raw["price"])
	if !ok || price < 0 {
		return internal.CandidateItem{}, errors.New("missing price")
	}

	src := firstString(raw, "sourceId", "retailer")
	if src == "" {
		src = source
	}

	rating, _ := toFloat(raw["rating"])
	reviews, _ := toFloat(raw["reviewCount"])
	days, _ := toFloat(raw["deliveryDays"])
	inStock := true
	if v, ok := raw["inStock"].(bool); ok {
		inStock = v
	}

	return internal.CandidateItem{
		ID:           id,
		Name:         name,
		Category:     firstString(raw, "category"),
		Price:        price,
		Rating:       clampRating(rating),
		ReviewCount:  max(0, int(reviews)),
		DeliveryDays: max(0, int(days)),
		SourceID:     strings.ToLower(src),
		InStock:      inStock,
		Image:        firstString(raw, "image", "imageUrl"),
		Description:  firstString(raw, "description"),
	}, nil
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func clampRating(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 5 {
		return 5
	}
	return r
}

// APISource exposes one retailer of the aggregation API as a Source.
type APISource struct {
	client *Client
	id     string
}

func NewAPISource(client *Client, id string) *APISource {
	return &APISource{client: client, id: id}
}

func (s *APISource) ID() string { return s.id }

func (s *APISource) Search(ctx context.Context, categories []string, maxResults int) ([]internal.CandidateItem, error) {
	var out []internal.CandidateItem
	for _, cat := range categories {
		items, err := s.client.SearchProducts(ctx, s.id, cat, maxResults)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", s.id, cat, err)
		}
		for _, it := range items {
			if it.Category == "" {
				it.Category = cat
			}
			it.SourceID = s.id
			out = append(out, it)
		}
	}
	return out, nil
}
