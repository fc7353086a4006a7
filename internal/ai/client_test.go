package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabloom/tabloom/internal/ai"
)

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id": "resp-1",
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func fastOptions(baseURL string) ai.Options {
	return ai.Options{
		BaseURL:          baseURL,
		HTTPTimeout:      5 * time.Second,
		RetryMaxAttempts: 3,
		RetryBaseDelay:   time.Millisecond,
		RetryMaxDelay:    2 * time.Millisecond,
	}
}

func TestGenerateText(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])
		w.Write([]byte(completion("hello")))
	}))
	defer srv.Close()

	c := ai.NewClient("key-1", fastOptions(srv.URL))
	out, err := c.GenerateText(context.Background(), "sys", "user", "test-model")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "Bearer key-1", gotAuth)
}

func TestGenerateTextRetriesServerError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(completion("recovered")))
	}))
	defer srv.Close()

	c := ai.NewClient("k", fastOptions(srv.URL))
	out, err := c.GenerateText(context.Background(), "", "user", "m")
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, 3, calls)
}

func TestGenerateTextAuthErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	c := ai.NewClient("k", fastOptions(srv.URL))
	_, err := c.GenerateText(context.Background(), "", "user", "m")
	var authErr *ai.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "invalid_api_key", authErr.Code)
	assert.Equal(t, 1, calls)
}

func TestGenerateTextRateLimitCarriesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	c := ai.NewClient("k", fastOptions(srv.URL))
	_, err := c.GenerateText(context.Background(), "", "user", "m")
	var rle *ai.RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 7*time.Second, rle.RetryAfter)
}

func TestGenerateTextEmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"r","choices":[]}`))
	}))
	defer srv.Close()

	c := ai.NewClient("k", fastOptions(srv.URL))
	_, err := c.GenerateText(context.Background(), "", "user", "m")
	assert.True(t, errors.Is(err, ai.ErrEmptyCompletion))
}

func TestGenerateTextValidation(t *testing.T) {
	c := ai.NewClient("", fastOptions("http://unused"))
	_, err := c.GenerateText(context.Background(), "", "u", "m")
	assert.Error(t, err)

	c = ai.NewClient("k", fastOptions("http://unused"))
	_, err = c.GenerateText(context.Background(), "", "u", "")
	assert.Error(t, err)
}

func TestFuncAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completion("via func")))
	}))
	defer srv.Close()

	gen := ai.NewClient("k", fastOptions(srv.URL)).Func()
	out, err := gen(context.Background(), "s", "u", "m")
	require.NoError(t, err)
	assert.Equal(t, "via func", out)
}
