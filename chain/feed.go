package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// FeedEvent is one on-chain point event as reported by the external feed.
// Amount is a decimal string at the 18-decimal scale; callers parse it into
// big.Int, never float.
type FeedEvent struct {
	Account   string `json:"account"`
	Amount    string `json:"amount"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// FeedClient queries the read-only on-chain event feed. Requests carry the
// caller's context for timeouts and go through an outbound throttle so a merge
// over a long window cannot hammer the feed.
type FeedClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func NewFeedClient(baseURL string) *FeedClient {
	return &FeedClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
}

// EventsSince returns every point event with timestamp >= since.
func (c *FeedClient) EventsSince(ctx context.Context, since int64) ([]FeedEvent, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("since", strconv.FormatInt(since, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed query: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed query returned %d: %s", resp.StatusCode, body)
	}

	var events []FeedEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("feed decode: %w", err)
	}
	return events, nil
}
