package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSteps(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"plain lines", "Open editor\nWrite intro\n", []string{"Open editor", "Write intro"}},
		{"numbered", "1. Draft outline\n2) Fill sections", []string{"Draft outline", "Fill sections"}},
		{"bullets and blanks", "- one\n\n* two\n  • three  ", []string{"one", "two", "three"}},
		{"checkboxes", "[ ] pack\n[x] label", []string{"pack", "label"}},
		{"empty", "\n  \n", nil},
		{"capped", "a\nb\nc\nd\ne\nf\ng\nh\ni\nj", []string{"a", "b", "c", "d", "e", "f", "g", "h"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSteps(tt.content))
		})
	}
}

func TestBreakdowner_Breakdown(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"1. Outline\n2. Draft\n3. Review"}}]}`))
	}))
	defer srv.Close()

	b := New(Config{Endpoint: srv.URL + "/v1/", APIKey: "secret", Model: "small"}, nil)
	steps, err := b.Breakdown(context.Background(), "Write report", "quarterly numbers")
	require.NoError(t, err)
	assert.Equal(t, []string{"Outline", "Draft", "Review"}, steps)

	assert.Equal(t, "small", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "Write report")
	assert.Contains(t, got.Messages[1].Content, "quarterly numbers")
}

func TestBreakdowner_Errors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		_, err := New(Config{}, nil).Breakdown(context.Background(), "x", "")
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := New(Config{Endpoint: srv.URL, APIKey: "k"}, nil).Breakdown(context.Background(), "x", "")
		assert.ErrorIs(t, err, ErrBadResponse)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("json error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
		}))
		defer srv.Close()

		_, err := New(Config{Endpoint: srv.URL, APIKey: "k"}, nil).Breakdown(context.Background(), "x", "")
		assert.ErrorIs(t, err, ErrBadResponse)
		assert.Contains(t, err.Error(), "bad key")
	})

	t.Run("no choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()

		_, err := New(Config{Endpoint: srv.URL, APIKey: "k"}, nil).Breakdown(context.Background(), "x", "")
		assert.ErrorIs(t, err, ErrBadResponse)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := New(Config{Endpoint: srv.URL, APIKey: "k"}, nil).Breakdown(ctx, "x", "")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
