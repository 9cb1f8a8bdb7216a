package mq

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Index struct {
	EntityType string `json:"entity_type"`
	Method     string `json:"method"`
	EntityId   string `json:"entity_id"`
	ItemId     string `json:"item_id"`
	ItemType   string `json:"item_type"`
}

type envelope struct {
	Event   string `json:"event"`
	Content Index  `json:"content"`
}

// Handler consumes emitted events.
type Handler func(eventName string, content Index)

type Emitter interface {
	Emit(ctx context.Context, eventName string, content Index) error
}

// Local delivers events to in-process handlers synchronously.
type Local struct {
	handlers []Handler
}

func NewLocal(handlers ...Handler) *Local {
	return &Local{handlers: handlers}
}

func (l *Local) Emit(_ context.Context, eventName string, content Index) error {
	for _, h := range l.handlers {
		h(eventName, content)
	}
	return nil
}

// Redis publishes events on a channel so every instance can react.
type Redis struct {
	Conn    *redis.Client
	Channel string
}

func (e *Redis) Emit(ctx context.Context, eventName string, content Index) error {
	b, err := json.Marshal(envelope{Event: eventName, Content: content})
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	return errors.Wrapf(e.Conn.Publish(ctx, e.Channel, b).Err(), "publish %s", eventName)
}

// Listen subscribes to channel and hands every event to h until ctx ends.
func Listen(ctx context.Context, conn *redis.Client, channel string, h Handler, log logrus.FieldLogger) error {
	sub := conn.Subscribe(ctx, channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrapf(err, "subscribe %s", channel)
	}
	consume(ctx, sub.Channel(), h, log)
	return nil
}

func consume(ctx context.Context, msgs <-chan *redis.Message, h Handler, log logrus.FieldLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev envelope
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.WithError(err).WithField("channel", msg.Channel).Warn("dropping malformed event")
				continue
			}
			h(ev.Event, ev.Content)
		}
	}
}
