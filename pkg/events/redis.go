package events

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/frostime/sy-query-view/pkg/errors"
)

// DefaultChannel is the redis channel used when none is configured.
const DefaultChannel = "queryview:events"

// RedisBridge relays events between processes over redis pub/sub.
type RedisBridge struct {
	client  *redis.Client
	channel string
	bus     *Bus
	logger  *log.Logger
}

// NewRedisBridge creates a bridge that delivers events received on channel
// to bus.
func NewRedisBridge(client *redis.Client, channel string, bus *Bus, logger *log.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RedisBridge{client: client, channel: channel, bus: bus, logger: logger}
}

// Channel returns the redis channel name.
func (r *RedisBridge) Channel() string { return r.channel }

// Publish sends e to every process listening on the channel, including
// this one if [RedisBridge.Run] is active.
func (r *RedisBridge) Publish(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode event")
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "publish event")
	}
	return nil
}

// Run receives events until ctx is done. Malformed messages are logged
// and skipped.
func (r *RedisBridge) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "subscribe %s", r.channel)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			e, err := Decode([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn("dropping malformed event", "channel", r.channel, "err", err)
				continue
			}
			if _, err := r.bus.Publish(ctx, e); err != nil {
				r.logger.Warn("event not delivered", "kind", e.Kind, "err", err)
			}
		}
	}
}
