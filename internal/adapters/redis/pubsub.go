package redisad

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"rutas_admin/internal/adapters/observability"
	"rutas_admin/internal/domain"
)

const ChangesChannel = "rutas:changes"

// PubSub carries document change events between API instances and the
// real-time feed.
type PubSub struct {
	c       *redis.Client
	channel string
}

func NewPubSub(c *redis.Client) *PubSub { return &PubSub{c: c, channel: ChangesChannel} }

func (p *PubSub) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.c.Publish(ctx, p.channel, b).Err(); err != nil {
		return err
	}
	observability.ObserveChange(ev.Collection, ev.Op)
	return nil
}

// Subscribe blocks until ctx is done. Undecodable payloads are logged and skipped.
func (p *PubSub) Subscribe(ctx context.Context, fn func(domain.ChangeEvent)) error {
	sub := p.c.Subscribe(ctx, p.channel)
	defer sub.Close()

	// wait for the subscription to be confirmed before reading
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev domain.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("bad change event")
				continue
			}
			fn(ev)
		}
	}
}
