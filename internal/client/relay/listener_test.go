package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/logging"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

func relayServer(t *testing.T, events []model.RelayEvent, gotAuth *string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotAuth != nil {
			*gotAuth = r.Header.Get("Authorization")
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		for _, ev := range events {
			if err := wsjson.Write(r.Context(), conn, ev); err != nil {
				return
			}
		}
		// Keep the connection open briefly so the client drains the events.
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testLogger(t *testing.T) logging.Logger {
	t.Helper()
	return logging.NewJSONLogger(testWriter{t})
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func TestListener_DeliversOwnTenantEvents(t *testing.T) {
	var auth string
	url := relayServer(t, []model.RelayEvent{
		{TenantID: "t1", EntityType: "invoice", EntityID: "inv-1", Version: 5},
	}, &auth)

	l := NewListener(url, "t1", func() string { return "token-1" }, testLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	select {
	case ev := <-l.Events():
		assert.Equal(t, "inv-1", ev.EntityID)
		assert.Equal(t, int64(5), ev.Version)
	case <-ctx.Done():
		t.Fatal("expected a relay event")
	}
	require.Equal(t, "Bearer token-1", auth)
}

func TestListener_DiscardsForeignTenantEvents(t *testing.T) {
	url := relayServer(t, []model.RelayEvent{
		{TenantID: "other", EntityType: "invoice", EntityID: "inv-9", Version: 1},
		{TenantID: "t1", EntityType: "bill", EntityID: "bill-1", Version: 2},
	}, nil)

	l := NewListener(url, "t1", func() string { return "" }, testLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	select {
	case ev := <-l.Events():
		// The foreign-tenant event must never surface.
		assert.Equal(t, "t1", ev.TenantID)
		assert.Equal(t, "bill-1", ev.EntityID)
	case <-ctx.Done():
		t.Fatal("expected the own-tenant event")
	}
}

func TestListener_RunStopsOnCancel(t *testing.T) {
	url := relayServer(t, nil, nil)
	l := NewListener(url, "t1", func() string { return "" }, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
