package invalidation

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/buoy-console/internal/querycache"
)

func recvMessage(t *testing.T, ch <-chan Message, timeout time.Duration) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for invalidation")
	}
	return Message{}
}

func TestMessageCodecKeepsKeys(t *testing.T) {
	in := Message{
		Origin: "replica-a",
		Keys:   []querycache.Key{querycache.NewKey("dataset", "buoy_a"), querycache.NewKey("pipeline", 3)},
		Tags:   []string{"datasets"},
		At:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	raw, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Origin != in.Origin || len(out.Keys) != 2 || out.Keys[0] != in.Keys[0] || out.Keys[1] != in.Keys[1] {
		t.Fatalf("round trip: got=%+v want=%+v", out, in)
	}
	if out.Keys[1].Tag() != "pipeline" || out.Tags[0] != "datasets" || !out.At.Equal(in.At) {
		t.Fatalf("round trip lost detail: %+v", out)
	}
	if _, err := Decode([]byte(`{"keys":["not a tuple"]}`)); err == nil {
		t.Fatalf("expected decode error for malformed key")
	}
}

func TestLocalBusFansOut(t *testing.T) {
	bus := NewLocal(nil)
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b := make(chan Message, 4), make(chan Message, 4)
	if err := bus.StartForwarder(ctx, func(m Message) { a <- m }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	if err := bus.StartForwarder(ctx, func(m Message) { b <- m }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}

	msg := Message{Origin: "x", Tags: []string{"datasets"}}
	if err := bus.Publish(ctx, msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := recvMessage(t, a, time.Second); got.Origin != "x" {
		t.Fatalf("subscriber a got=%+v", got)
	}
	if got := recvMessage(t, b, time.Second); got.Tags[0] != "datasets" {
		t.Fatalf("subscriber b got=%+v", got)
	}
}

func TestLocalBusStopsForwardingAfterCancel(t *testing.T) {
	bus := NewLocal(nil)
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan Message, 4)
	if err := bus.StartForwarder(ctx, func(m Message) { got <- m }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	cancel()
	time.Sleep(20 * time.Millisecond)

	if err := bus.Publish(context.Background(), Message{Origin: "late"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case m := <-got:
		t.Fatalf("cancelled forwarder received %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocalBusClosed(t *testing.T) {
	bus := NewLocal(nil)
	_ = bus.Close()
	if err := bus.Publish(context.Background(), Message{}); err == nil {
		t.Fatalf("publish on closed bus must fail")
	}
	if err := bus.StartForwarder(context.Background(), func(Message) {}); err == nil {
		t.Fatalf("subscribe on closed bus must fail")
	}
}
