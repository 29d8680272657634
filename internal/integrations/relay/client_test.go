package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"bruno-bot/internal/domain"
)

func TestRequestFeedback(t *testing.T) {
	var got domain.FeedbackRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/feedback", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"messages":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/feedback", "", WithHTTPClient(srv.Client()))
	req := domain.FeedbackRequest{ChatID: 7, Messages: []domain.FeedbackItem{{MessageID: 3, Text: "I will went"}}}
	require.NoError(t, c.RequestFeedback(context.Background(), req))
	require.Equal(t, req, got)

	require.ErrorContains(t, c.RequestFeedback(context.Background(), domain.FeedbackRequest{ChatID: 7}), "no messages")
}

func TestNotify(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient("", srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, c.Notify(context.Background(), domain.Alert{Message: "boom", UserID: "ana", ChatID: 9}))
	require.Equal(t, "boom", raw["message"])
	require.Equal(t, "ana", raw["userId"])
	require.EqualValues(t, 9, raw["chatId"])
}

func TestPost_Errors(t *testing.T) {
	c := NewClient("", "")
	require.ErrorContains(t, c.Notify(context.Background(), domain.Alert{}), "endpoint not configured")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c = NewClient("", srv.URL, WithHTTPClient(srv.Client()))
	err := c.Notify(context.Background(), domain.Alert{Message: "x"})
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.HTTPStatusCode())
}
