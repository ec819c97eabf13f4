package broadcaster

import (
	"io"
	"testing"
	"time"

	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

func TestBroadcaster_SubscribeReceivesChunks(t *testing.T) {
	r, w := io.Pipe()
	id := tunertypes.TunerSessionID{TunerIndex: 0}
	b := New(id, r)
	defer b.Close()

	sub := tunertypes.TunerSubscriptionID{SessionID: id, SerialNumber: 1}
	ch := b.Subscribe(sub)

	go func() {
		w.Write([]byte("hello"))
		w.Close()
	}()

	select {
	case chunk := <-ch:
		if string(chunk) != "hello" {
			t.Errorf("got chunk %q, want %q", chunk, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast chunk")
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	id := tunertypes.TunerSessionID{TunerIndex: 0}
	b := New(id, r)
	defer b.Close()

	sub := tunertypes.TunerSubscriptionID{SessionID: id, SerialNumber: 1}
	ch := b.Subscribe(sub)
	b.Unsubscribe(sub)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed after Unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestBroadcaster_CloseClosesAllSubscribers(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	id := tunertypes.TunerSessionID{TunerIndex: 0}
	b := New(id, r)

	sub1 := tunertypes.TunerSubscriptionID{SessionID: id, SerialNumber: 1}
	sub2 := tunertypes.TunerSubscriptionID{SessionID: id, SerialNumber: 2}
	ch1 := b.Subscribe(sub1)
	ch2 := b.Subscribe(sub2)

	b.Close()

	for _, ch := range []<-chan []byte{ch1, ch2} {
		select {
		case _, ok := <-ch:
			if ok {
				t.Error("expected channel to be closed after Close")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for channel close")
		}
	}

	// Close must be idempotent.
	b.Close()
}

func TestBroadcaster_SlowSubscriberDropsOldest(t *testing.T) {
	r, w := io.Pipe()
	id := tunertypes.TunerSessionID{TunerIndex: 0}
	b := New(id, r)
	defer b.Close()

	sub := tunertypes.TunerSubscriptionID{SessionID: id, SerialNumber: 1}
	ch := b.Subscribe(sub)

	written := make(chan struct{})
	go func() {
		for i := 0; i < chanBufPackets+16; i++ {
			w.Write([]byte{byte(i)})
		}
		w.Close()
		close(written)
	}()

	// Drain nothing until every write has been consumed: the broadcaster
	// must not block the writer even though this subscriber never reads,
	// because fanOut drops the oldest buffered chunk instead.
	select {
	case <-written:
	case <-time.After(3 * time.Second):
		t.Fatal("writer blocked: fanOut stalled on a subscriber that never reads")
	}

	// Each one-byte write is one chunk. Once the writer is done, at least
	// chanBufPackets+15 chunks have been fanned out into a buffer of
	// chanBufPackets, so chunk 0 must have been dropped.
	first := <-ch
	if first[0] == 0 {
		t.Errorf("oldest chunk was not dropped: first buffered chunk is %d", first[0])
	}
}
