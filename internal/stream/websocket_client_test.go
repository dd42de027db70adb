package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"db-health-agent/internal/model"
)

func TestWebSocketClientSendsEnvelope(t *testing.T) {
	received := make(chan model.Envelope, 1)
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		var env model.Envelope
		if json.Unmarshal(data, &env) == nil {
			received <- env
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewWebSocketClient(url, "secret", nil, time.Second, time.Hour, discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.SendReport(ctx, model.Report{ID: "r1", NodeID: "db-01", CompletedAt: time.Unix(1700000000, 0)}))

	select {
	case env := <-received:
		assert.Equal(t, model.MessageTypeHealthReport, env.Type)
		assert.Equal(t, "db-01", env.NodeID)
		assert.Equal(t, int64(1700000000), env.TimestampUnix)
	case <-ctx.Done():
		t.Fatal("no envelope received")
	}
	assert.Equal(t, "Bearer secret", <-auth)
	_ = c.Close(context.Background())
}

func TestWebSocketClientDialFailure(t *testing.T) {
	c := NewWebSocketClient("ws://127.0.0.1:1/ws", "", nil, 100*time.Millisecond, time.Hour, discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.Error(t, c.SendReport(ctx, model.Report{ID: "r1"}))
}
