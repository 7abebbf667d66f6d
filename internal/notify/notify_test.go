package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diningflow/internal/domain"
)

func renderRequest() domain.Request {
	return domain.Request{
		RequestID:      "req_1",
		Cuisine:        "japanese",
		Location:       "Manhattan",
		PartySize:      4,
		Date:           "2026-08-26",
		Time:           "19:00",
		ContactAddress: "a@b.com",
	}
}

func TestRenderWithCandidates(t *testing.T) {
	subject, body, err := Render(renderRequest(), []string{"r1", "r2", "r3"})
	require.NoError(t, err)
	assert.Equal(t, "Japanese picks for you", subject)
	assert.Contains(t, body, "3 Japanese suggestion(s)")
	assert.Contains(t, body, "Manhattan")
	assert.Contains(t, body, "r2")
}

func TestRenderZeroCandidates(t *testing.T) {
	subject, body, err := Render(renderRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, "No Japanese suggestions right now", subject)
	assert.Contains(t, body, "find any Japanese places")
}

func TestRenderEscapesContent(t *testing.T) {
	req := renderRequest()
	req.Location = "<script>alert(1)</script>"
	_, body, err := Render(req, []string{"r1"})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
}

func TestRelaySend(t *testing.T) {
	var got relayMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	relay := NewRelay(srv.URL, "concierge@example.com", time.Second)
	err := relay.Send(context.Background(), "a@b.com", "subject", "<p>hi</p>")
	require.NoError(t, err)

	assert.Equal(t, "concierge@example.com", got.From)
	assert.Equal(t, "a@b.com", got.To)
	assert.Equal(t, "subject", got.Subject)
	assert.Equal(t, "<p>hi</p>", got.HTML)
}

func TestRelaySendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "relay exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	relay := NewRelay(srv.URL, "concierge@example.com", time.Second)
	err := relay.Send(context.Background(), "a@b.com", "subject", "<p>hi</p>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
