package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"CardSignals/internal/domain/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversPublishedSignal(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r)
	}))
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	ev := models.SignalEvent{Style: "quick_hit", Headline: "Charizard — 15% edge, conf 80%",
		Signal: models.Signal{ID: "s1", EdgeBp: 1500}}
	require.NoError(t, hub.Publish(context.Background(), ev))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got models.SignalEvent
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "s1", got.Signal.ID)
	assert.Equal(t, ev.Headline, got.Headline)
}

func TestHubBroadcastWithoutClients(t *testing.T) {
	hub := NewHub(nil)
	assert.NoError(t, hub.Broadcast(map[string]string{"a": "b"}))
	assert.Equal(t, 0, hub.Clients())
}
