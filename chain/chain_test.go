package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFeedEventsSince(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1700000000", r.URL.Query().Get("since"))
		json.NewEncoder(w).Encode([]FeedEvent{
			{Account: "0xA1", Amount: "400", Type: "borrow", Timestamp: 1700000100},
			{Account: "0xB2", Amount: "250", Type: "supply", Timestamp: 1700000200},
		})
	}))
	defer srv.Close()

	events, err := NewFeedClient(srv.URL).EventsSince(context.Background(), 1700000000)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "0xA1", events[0].Account)
	require.Equal(t, "400", events[0].Amount)
	require.EqualValues(t, 1700000200, events[1].Timestamp)
}

func TestFeedEventsSinceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "indexer catching up", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewFeedClient(srv.URL).EventsSince(context.Background(), 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}

func TestKeeperSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/updates", r.URL.Path)
		var body struct {
			BatchID string       `json:"batch_id"`
			Deltas  []PointDelta `json:"deltas"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "batch-1", body.BatchID)
		require.Len(t, body.Deltas, 1)
		json.NewEncoder(w).Encode(map[string]string{"tx_hash": "0xabc"})
	}))
	defer srv.Close()

	txHash, err := NewPointKeeperClient(srv.URL).Submit(context.Background(), "batch-1", []PointDelta{
		{Account: "0xa1", Points: "1000"},
	})
	require.NoError(t, err)
	require.Equal(t, "0xabc", txHash)
}

func TestKeeperSubmitEmptyTxHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	_, err := NewPointKeeperClient(srv.URL).Submit(context.Background(), "batch-1", nil)
	require.Error(t, err)
}

func TestKeeperAwaitConfirmationPolls(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/updates/0xabc", r.URL.Path)
		status := "pending"
		if atomic.AddInt32(&polls, 1) >= 3 {
			status = "confirmed"
		}
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}))
	defer srv.Close()

	c := NewPointKeeperClient(srv.URL)
	c.pollInterval = 5 * time.Millisecond
	require.NoError(t, c.AwaitConfirmation(context.Background(), "0xabc"))
	require.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(3))
}

func TestKeeperAwaitConfirmationFailedTx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "failed"})
	}))
	defer srv.Close()

	c := NewPointKeeperClient(srv.URL)
	c.pollInterval = 5 * time.Millisecond
	err := c.AwaitConfirmation(context.Background(), "0xdead")
	require.ErrorIs(t, err, ErrSubmissionFailed)
}

func TestKeeperAwaitConfirmationContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	c := NewPointKeeperClient(srv.URL)
	c.pollInterval = 5 * time.Millisecond
	err := c.AwaitConfirmation(ctx, "0xabc")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
