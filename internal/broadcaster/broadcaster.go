// Package broadcaster implements the Subscribe/Unsubscribe collaborator a
// TunerSession hands to every subscriber of a tuner's MPEG-TS byte stream.
//
// The broadcaster itself is specified only by its subscribe/unsubscribe
// contract (spec.md §6); this implementation is the concrete byte-pump a
// session needs in order to compile and be testable, built the same way the
// teacher buffers and fans a stream out to slow readers in
// internal/tuner/gateway.go's adaptiveWriter/streamWriter.
package broadcaster

import (
	"io"
	"log"
	"sync"

	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

// chanBufPackets bounds how many unconsumed chunks a subscriber can fall
// behind by before the broadcaster drops its oldest buffered chunk rather
// than block the whole fan-out on one slow reader.
const chanBufPackets = 256

// tsPacketSize is the MPEG-TS packet size; the read buffer holds 64 packets.
// A chunk is whatever one Read returns, so chunk boundaries need not fall on
// packet boundaries.
const tsPacketSize = 188

// Broadcaster reads a tuner's stdout and multicasts it to every subscriber.
type Broadcaster struct {
	id tunertypes.TunerSessionID

	mu   sync.Mutex
	subs map[uint32]chan []byte
	done chan struct{}
}

// New starts pumping r's bytes to subscribers in a background goroutine. The
// goroutine exits when r reaches EOF or returns an error; Close does not
// interrupt a pending Read.
func New(id tunertypes.TunerSessionID, r io.Reader) *Broadcaster {
	b := &Broadcaster{
		id:   id,
		subs: make(map[uint32]chan []byte),
		done: make(chan struct{}),
	}
	go b.pump(r)
	return b
}

func (b *Broadcaster) pump(r io.Reader) {
	buf := make([]byte, tsPacketSize*64)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			b.fanOut(chunk)
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("%s: broadcaster read error: %v", b.id, err)
			}
			return
		}
	}
}

func (b *Broadcaster) fanOut(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- chunk:
		default:
			// Slow subscriber: drop its oldest buffered chunk rather than
			// stall the whole fan-out.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- chunk:
			default:
			}
		}
	}
}

// Subscribe registers id and returns a channel of TS byte chunks for it.
func (b *Broadcaster) Subscribe(id tunertypes.TunerSubscriptionID) <-chan []byte {
	ch := make(chan []byte, chanBufPackets)
	b.mu.Lock()
	b.subs[id.SerialNumber] = ch
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes id's channel. Safe to call more than once.
func (b *Broadcaster) Unsubscribe(id tunertypes.TunerSubscriptionID) {
	b.mu.Lock()
	ch, ok := b.subs[id.SerialNumber]
	delete(b.subs, id.SerialNumber)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Close stops the broadcaster and closes every subscriber channel.
func (b *Broadcaster) Close() {
	select {
	case <-b.done:
		return
	default:
		close(b.done)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for serial, ch := range b.subs {
		close(ch)
		delete(b.subs, serial)
	}
}
