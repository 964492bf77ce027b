package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tech-advisor/internal/domain"
)

// ---------------------------------------------------------------------------
// chatURL helper
// ---------------------------------------------------------------------------

func TestChatURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
		{"http://localhost:8080", "http://localhost:8080/v1/chat/completions"},
		{"", "https://api.openai.com/v1/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, chatURL(tc.base), "base=%q", tc.base)
	}
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient()
	require.Equal(t, "https://api.openai.com/v1", c.baseURL)
	require.Equal(t, "gpt-3.5-turbo", c.Model())
	require.Nil(t, c.temperature)
	require.Nil(t, c.maxTokens)
}

func TestNewClient_Options(t *testing.T) {
	c := NewClient(WithModel("gpt-4o-mini"), WithTemperature(0.7), WithMaxTokens(2000), WithModel(" "))
	require.Equal(t, "gpt-4o-mini", c.Model())
	require.InDelta(t, 0.7, *c.temperature, 1e-9)
	require.Equal(t, 2000, *c.maxTokens)

	c = NewClient(WithTemperature(-1), WithMaxTokens(0))
	require.Nil(t, c.temperature)
	require.Nil(t, c.maxTokens)
}

// ---------------------------------------------------------------------------
// Client.Complete
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	return NewClient(append([]Option{
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	}, opts...)...)
}

func TestClient_Complete_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		reqBody, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var got chatRequest
		require.NoError(t, json.Unmarshal(reqBody, &got))
		require.Equal(t, "gpt-mock", got.Model)
		require.Len(t, got.Messages, 2)
		require.Equal(t, domain.RoleSystem, got.Messages[0].Role)
		require.InDelta(t, 0.7, *got.Temperature, 1e-9)
		require.Equal(t, 2000, *got.MaxTokens)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-123",
			"object": "chat.completion",
			"created": 1670000000,
			"choices": [{
				"index": 0,
				"message": { "role": "assistant", "content": "# Hello from mock" }
			}]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithModel("gpt-mock"), WithTemperature(0.7), WithMaxTokens(2000))
	turn, err := c.Complete(context.Background(), "sk-test", []domain.Turn{
		domain.SystemTurn("sys"),
		domain.UserTurn("hi"),
	})
	require.NoError(t, err)
	require.Equal(t, domain.AssistantTurn("# Hello from mock"), turn)
}

func TestClient_Complete_OmitsUnsetSampling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqBody, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NotContains(t, string(reqBody), "temperature")
		require.NotContains(t, string(reqBody), "max_tokens")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Complete(context.Background(), "sk-test", nil)
	require.NoError(t, err)
}

func TestClient_Complete_EmptyKey(t *testing.T) {
	_, err := NewClient().Complete(context.Background(), " ", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}

func TestClient_Complete_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Complete(context.Background(), "sk-test", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected status")
	require.Contains(t, err.Error(), "400")
}

func TestClient_Complete_StatusErrorIsInspectable(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}))

		c := newTestClient(t, srv)
		_, err := c.Complete(context.Background(), "sk-test", []domain.Turn{domain.UserTurn("hi")})
		srv.Close()

		var statusErr *HTTPStatusError
		require.True(t, errors.As(err, &statusErr))
		require.Equal(t, status, statusErr.HTTPStatusCode())
	}
}

func TestClient_Complete_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`not-a-json`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Complete(context.Background(), "sk-test", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestClient_Complete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Complete(context.Background(), "sk-test", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no choices")
}

func TestClient_Complete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := c.Complete(context.Background(), "sk-test", nil)
	require.Error(t, err)
}

func TestClient_Complete_NetworkError(t *testing.T) {
	c := NewClient(WithBaseURL("http://127.0.0.1:1"))
	c.httpClient = nil

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := c.Complete(ctx, "sk-test", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "request failed")
}
