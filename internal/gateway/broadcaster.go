package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// backlogSize is how many recent frames are kept for Last-Event-ID replay.
const backlogSize = 64

type frame struct {
	id   uint64
	data []byte
}

// Broadcaster fans SSEEvent values out to all GET /events subscribers. Every
// frame carries a sequential id; a tab reconnecting with Last-Event-ID gets
// the frames it missed so it can refetch after container edits or ingests.
// Slow subscribers drop frames rather than block senders.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[chan []byte]struct{}
	seq     uint64
	backlog []frame
}

func newBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan []byte]struct{})}
}

// subscribe registers a subscriber and returns the backlog frames newer than
// lastID. The caller must call unsubscribe when the connection closes.
func (b *Broadcaster) subscribe(lastID uint64) (chan []byte, [][]byte) {
	ch := make(chan []byte, 32)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	var missed [][]byte
	if lastID > 0 {
		for _, f := range b.backlog {
			if f.id > lastID {
				missed = append(missed, f.data)
			}
		}
	}
	return ch, missed
}

func (b *Broadcaster) unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// subscribers reports the number of open streams.
func (b *Broadcaster) subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) send(evt SSEEvent) {
	raw, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("gateway: failed to marshal SSE event", "type", evt.Type, "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	data := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", b.seq, evt.Type, raw))
	b.backlog = append(b.backlog, frame{id: b.seq, data: data})
	if len(b.backlog) > backlogSize {
		b.backlog = b.backlog[len(b.backlog)-backlogSize:]
	}
	for ch := range b.subs {
		select {
		case ch <- data:
		default:
			slog.Debug("gateway: dropping SSE frame for slow subscriber", "id", b.seq)
		}
	}
}
