package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// PointDelta is one account's net change for a merge cycle. Points is a
// decimal string at the 18-decimal scale.
type PointDelta struct {
	Account string `json:"account"`
	Points  string `json:"points"`
}

// ErrSubmissionFailed means the external write was rejected or its transaction
// reverted; the batch can be retried as a whole under a new cycle.
var ErrSubmissionFailed = errors.New("point keeper submission failed")

// PointKeeperClient talks to the external batched-update target (the on-chain
// point keeper behind a relay). Submissions are idempotent per batch ID: the
// relay drops a batch it has already accepted, so retrying a cycle whose
// confirmation was lost cannot double-write.
type PointKeeperClient struct {
	baseURL      string
	http         *http.Client
	limiter      *rate.Limiter
	pollInterval time.Duration
}

func NewPointKeeperClient(baseURL string) *PointKeeperClient {
	return &PointKeeperClient{
		baseURL:      baseURL,
		http:         &http.Client{Timeout: 30 * time.Second},
		limiter:      rate.NewLimiter(rate.Limit(2), 2),
		pollInterval: 5 * time.Second,
	}
}

// Submit sends one batch and returns the transaction hash to await.
func (c *PointKeeperClient) Submit(ctx context.Context, batchID string, deltas []PointDelta) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	payload, err := json.Marshal(map[string]interface{}{
		"batch_id": batchID,
		"deltas":   deltas,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/updates", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("point keeper submit: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("point keeper submit returned %d: %s", resp.StatusCode, body)
	}

	var out struct {
		TxHash string `json:"tx_hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("point keeper decode: %w", err)
	}
	if out.TxHash == "" {
		return "", errors.New("point keeper returned empty tx hash")
	}
	return out.TxHash, nil
}

// AwaitConfirmation polls until the submitted transaction is confirmed, the
// keeper reports failure, or the context expires.
func (c *PointKeeperClient) AwaitConfirmation(ctx context.Context, txHash string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		status, err := c.txStatus(ctx, txHash)
		if err != nil {
			return err
		}
		switch status {
		case "confirmed":
			return nil
		case "failed":
			return fmt.Errorf("%w: tx %s", ErrSubmissionFailed, txHash)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *PointKeeperClient) txStatus(ctx context.Context, txHash string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/updates/"+txHash, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("point keeper status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("point keeper status returned %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Status, nil
}
