// Package relay maintains the websocket subscription to the authority's
// change relay. Events are pure pull triggers: the listener never applies
// payloads, it only filters by tenant and hands routing metadata to the
// engine's dispatcher.
package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/logging"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// TokenFunc supplies the current access token for the websocket dial.
type TokenFunc func() string

// Listener connects to /api/sync/events and forwards matching events into
// a bounded channel consumed by a single dispatcher.
type Listener struct {
	url      string
	tenantID string
	token    TokenFunc
	logger   logging.Logger
	events   chan model.RelayEvent

	reconnectMin time.Duration
	reconnectMax time.Duration
}

// NewListener builds a listener for one tenant. url is the ws:// or wss://
// endpoint of the relay.
func NewListener(url, tenantID string, token TokenFunc, logger logging.Logger) *Listener {
	return &Listener{
		url:          url,
		tenantID:     tenantID,
		token:        token,
		logger:       logger.With("module", "relay"),
		events:       make(chan model.RelayEvent, 64),
		reconnectMin: time.Second,
		reconnectMax: 30 * time.Second,
	}
}

// Events returns the bounded channel of tenant-scoped relay events.
func (l *Listener) Events() <-chan model.RelayEvent {
	return l.events
}

// Run keeps the subscription alive until ctx is cancelled, reconnecting
// with capped exponential backoff after any failure.
func (l *Listener) Run(ctx context.Context) error {
	delay := l.reconnectMin
	for {
		err := l.listenOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Warn(ctx, "relay connection lost, reconnecting", "delay", delay.String(), "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > l.reconnectMax {
			delay = l.reconnectMax
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context) error {
	header := http.Header{}
	if token := l.token(); token != "" {
		header.Set(common.AuthorizationHeader, "Bearer "+token)
	}

	conn, _, err := websocket.Dial(ctx, l.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	l.logger.Info(ctx, "relay connected")

	for {
		var ev model.RelayEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			return err
		}
		l.deliver(ctx, ev)
	}
}

// deliver filters by tenant and enqueues. The channel is bounded: when full
// the event is dropped, which is safe because a pull triggered by any later
// event (or the poll timer) covers the same delta.
func (l *Listener) deliver(ctx context.Context, ev model.RelayEvent) {
	if ev.TenantID != l.tenantID {
		l.logger.Warn(ctx, "discarding relay event for foreign tenant",
			"eventTenant", ev.TenantID, "entityType", ev.EntityType)
		return
	}
	select {
	case l.events <- ev:
	default:
	}
}
