// Package relay fans out change notifications: every accepted write is
// published to a per-tenant redis channel, and the hub forwards messages to
// the websocket subscribers of that tenant. Redis sits in the middle so a
// multi-instance deployment relays across instances.
package relay

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/logging"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

const channelPrefix = "relay:"

// subscriberBuffer bounds each websocket subscriber's queue. A slow
// consumer loses events, never blocks the hub; events are only pull
// triggers, so a lost one costs at most one poll interval.
const subscriberBuffer = 16

type subscriber struct {
	tenantID string
	ch       chan model.RelayEvent
}

// Hub is the fan-out point between redis and websocket sessions.
type Hub struct {
	client *redis.Client
	logger logging.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func NewHub(client *redis.Client, logger logging.Logger) *Hub {
	return &Hub{
		client: client,
		logger: logger.With("module", "relay"),
		subs:   make(map[*subscriber]struct{}),
	}
}

// Publish announces one accepted write on the tenant's channel.
func (h *Hub) Publish(ctx context.Context, ev model.RelayEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return h.client.Publish(ctx, channelPrefix+ev.TenantID, data).Err()
}

// Subscribe registers a local consumer for one tenant's events. The
// returned cancel func must be called when the session ends.
func (h *Hub) Subscribe(tenantID string) (<-chan model.RelayEvent, func()) {
	sub := &subscriber{tenantID: tenantID, ch: make(chan model.RelayEvent, subscriberBuffer)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

// Run subscribes to all tenant channels and dispatches until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) error {
	pubsub := h.client.PSubscribe(ctx, channelPrefix+"*")
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			h.dispatch(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, channel string, payload []byte) {
	tenantID := strings.TrimPrefix(channel, channelPrefix)

	var ev model.RelayEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		h.logger.Warn(ctx, "dropping malformed relay message", "channel", channel, "error", err)
		return
	}
	if ev.TenantID != tenantID {
		h.logger.Warn(ctx, "dropping relay message with mismatched tenant",
			"channel", channel, "tenant", ev.TenantID)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.tenantID != tenantID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Slow subscriber: drop, the poll timer covers it.
		}
	}
}
