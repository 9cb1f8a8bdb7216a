package mq

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type received struct {
	Event   string
	Content Index
}

func TestLocalEmitCallsEveryHandler(t *testing.T) {
	var got []received
	h := func(name string, idx Index) { got = append(got, received{name, idx}) }
	l := NewLocal(h, h)

	idx := Index{EntityType: "pantry", Method: "add", EntityId: "u1", ItemId: "i1", ItemType: "ingredient"}
	if err := l.Emit(context.Background(), "pantry.changed", idx); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	want := []received{{"pantry.changed", idx}, {"pantry.changed", idx}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestConsumeDecodesAndSkipsMalformed(t *testing.T) {
	log := logrus.New()
	log.Out = io.Discard

	idx := Index{EntityType: "pantry", Method: "remove", EntityId: "u2", ItemId: "i9"}
	payload, err := json.Marshal(envelope{Event: "pantry.changed", Content: idx})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	msgs := make(chan *redis.Message, 3)
	msgs <- &redis.Message{Channel: "c", Payload: "{not json"}
	msgs <- &redis.Message{Channel: "c", Payload: string(payload)}
	close(msgs)

	var got []received
	consume(context.Background(), msgs, func(name string, idx Index) {
		got = append(got, received{name, idx})
	}, log)

	if diff := cmp.Diff([]received{{"pantry.changed", idx}}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestConsumeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		consume(ctx, make(chan *redis.Message), func(string, Index) {}, logrus.New())
		close(done)
	}()
	<-done
}
