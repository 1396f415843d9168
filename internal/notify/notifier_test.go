package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.DiscardHandler)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func TestNotifyFiltersByEventType(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventBlackSwan}, discard)

	require.NoError(t, n.Notify(context.Background(), EventLargeMove, "move", "body"))
	require.NoError(t, n.Notify(context.Background(), EventBlackSwan, "swan", "body"))

	assert.Equal(t, []string{"swan"}, s.titles)
}

func TestNotifyEmptyEventListAllowsEverything(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discard)

	require.NoError(t, n.Notify(context.Background(), EventCollectorError, "err", "body"))
	assert.Len(t, s.titles, 1)
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard)

	err := n.NotifyAll(context.Background(), "title", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Len(t, good.titles, 1, "remaining senders still deliver")
}

func TestTelegramSenderPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottok/sendMessage", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "chat-1")
	s.apiHost = srv.URL
	require.NoError(t, s.Send(context.Background(), "Title", "Body"))

	assert.Equal(t, "chat-1", got["chat_id"])
	assert.Equal(t, "*Title*\nBody", got["text"])
	assert.Equal(t, true, got["disable_web_page_preview"])
}

func TestDiscordSenderEmbedAndErrorStatus(t *testing.T) {
	var got map[string]any
	status := http.StatusNoContent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(status)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Title", "Body"))

	embeds, ok := got["embeds"].([]any)
	require.True(t, ok)
	require.Len(t, embeds, 1)
	embed := embeds[0].(map[string]any)
	assert.Equal(t, "Title", embed["title"])
	assert.Equal(t, "Body", embed["description"])

	status = http.StatusTooManyRequests
	err := s.Send(context.Background(), "Title", "Body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
