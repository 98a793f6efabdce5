package llm

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

func TestNewHTTPClientValidation(t *testing.T) {
	_, err := NewHTTPClient(Config{Dialect: DialectAnthropic})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = NewHTTPClient(Config{Dialect: "cohere", APIKey: "k"})
	assert.Error(t, err)
}

func TestCompleteAnthropicDialect(t *testing.T) {
	var gotPath, gotKey, gotVersion string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		gotVersion = r.Header.Get("Anthropic-Version")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content": [{"text": "expanded queries here"}]}`))
	}))
	defer srv.Close()

	client, err := NewHTTPClient(Config{
		Dialect: DialectAnthropic,
		Model:   "claude-sonnet",
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), "expand: machine learning")
	require.NoError(t, err)
	assert.Equal(t, "expanded queries here", got)

	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.NotEmpty(t, gotVersion)
	assert.Equal(t, "claude-sonnet", gotBody["model"])
}

func TestCompleteOpenAIDialect(t *testing.T) {
	var gotPath, gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"choices": [{"message": {"content": "ranked"}}]}`))
	}))
	defer srv.Close()

	client, err := NewHTTPClient(Config{
		Dialect: DialectOpenAI,
		Model:   "gpt-4o-mini",
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), "rerank these")
	require.NoError(t, err)
	assert.Equal(t, "ranked", got)
	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"content": [{"text": "ok"}]}`))
	}))
	defer srv.Close()

	client, err := NewHTTPClient(Config{
		Dialect: DialectAnthropic,
		APIKey:  "k",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad prompt"}`))
	}))
	defer srv.Close()

	client, err := NewHTTPClient(Config{
		Dialect: DialectAnthropic,
		APIKey:  "k",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "4xx responses other than 429 are not retried")
}

func TestCompleteHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewHTTPClient(Config{
		Dialect: DialectAnthropic,
		APIKey:  "k",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = client.Complete(ctx, "p")
	require.Error(t, err, "cancellation interrupts the backoff loop")
}
