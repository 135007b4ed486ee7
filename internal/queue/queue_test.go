package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	if err := q.Publish(ctx, Message{Type: "mark", Body: []byte("rec-1")}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	select {
	case msg := <-msgs:
		if msg.Type != "mark" || string(msg.Body) != "rec-1" {
			t.Errorf("message = %s/%s, want mark/rec-1", msg.Type, msg.Body)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestRedisQueueRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewRedisQueue(client, "test:marks")
	if err := q.Publish(ctx, Message{Type: "mark", Body: []byte("rec|with|pipes")}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	select {
	case msg := <-msgs:
		if msg.Type != "mark" {
			t.Errorf("type = %s, want mark", msg.Type)
		}
		if string(msg.Body) != "rec|with|pipes" {
			t.Errorf("body = %s, want rec|with|pipes", msg.Body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestSerializeSplitsOnFirstPipeOnly(t *testing.T) {
	msg := deserialize(serialize(Message{Type: "mark", Body: []byte("a|b")}))
	if msg.Type != "mark" || string(msg.Body) != "a|b" {
		t.Errorf("round trip = %s/%s, want mark/a|b", msg.Type, msg.Body)
	}
}

func TestNewRedisQueueDefaultsKey(t *testing.T) {
	q := NewRedisQueue(nil, "")
	if q.key != DefaultKey {
		t.Errorf("key = %q, want %q", q.key, DefaultKey)
	}
	if q := NewRedisQueue(nil, "other:marks"); q.key != "other:marks" {
		t.Errorf("key = %q, want other:marks", q.key)
	}
}
