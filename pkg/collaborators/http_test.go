package collaborators

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryPostsSourceAndQuery(t *testing.T) {
	t.Parallel()

	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/query", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		_ = json.NewEncoder(w).Encode(map[string]any{"rows": []any{"a", "b"}})
	}))
	defer server.Close()

	collab := NewHTTP(server.URL, time.Second)

	result, err := collab.Query(context.Background(), "orders", map[string]any{"limit": 10})
	require.NoError(t, err)
	assert.Equal(t, "orders", received["source"])
	assert.Len(t, result["rows"], 2)
}

func TestPerformDecodesActionResult(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"result":    map[string]any{"ticket": "T-42"},
			"retryable": false,
		})
	}))
	defer server.Close()

	collab := NewHTTP(server.URL, time.Second)

	result, err := collab.Perform(context.Background(), "open_ticket", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, "T-42", result.Result["ticket"])
}

func TestErrorStatusSurfacesBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "downstream unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	collab := NewHTTP(server.URL, time.Second)

	_, err := collab.Query(context.Background(), "orders", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "downstream unavailable")
}

func TestCallAppliesToolTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer server.Close()

	collab := NewHTTP(server.URL, 5*time.Second)

	_, err := collab.Call(context.Background(), "slow_tool", nil, 20*time.Millisecond)
	require.Error(t, err)
}
