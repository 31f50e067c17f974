package web

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/SharedCam/internal/logic/capture"
)

// Status stream levels.
const (
	LevelInfo  = "info"
	LevelError = "error"
	LevelStage = "stage"
	LevelStill = "still"
)

// StatusEvent is one message on the SSE status stream. From/To are set on
// stage events, Bytes on still events.
type StatusEvent struct {
	Time  string `json:"t"`
	Level string `json:"l,omitempty"`
	Msg   string `json:"msg"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Bytes int    `json:"bytes,omitempty"`
}

// StatusBroadcaster fans status messages out to SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel of JSON-encoded events and its cleanup.
// The cleanup must be called when the client goes away.
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Subscribers returns the number of connected clients.
func (b *StatusBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends a plain message to every client.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.publish(StatusEvent{Level: level, Msg: msg})
}

// publish stamps evt and fans it out. Clients with a full buffer miss it.
func (b *StatusBroadcaster) publish(evt StatusEvent) {
	evt.Time = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// BroadcastMsg broadcasts at level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast(LevelInfo, msg)
}

// BroadcastStage announces a coordinator stage change.
func (b *StatusBroadcaster) BroadcastStage(from, to capture.Stage) {
	b.publish(StatusEvent{
		Level: LevelStage,
		Msg:   fmt.Sprintf("%s -> %s", from, to),
		From:  from.String(),
		To:    to.String(),
	})
}

// BroadcastStill announces a delivered still of n bytes.
func (b *StatusBroadcaster) BroadcastStill(n int) {
	b.publish(StatusEvent{
		Level: LevelStill,
		Msg:   fmt.Sprintf("Still captured (%d bytes)", n),
		Bytes: n,
	})
}

// BroadcastWriter adapts the broadcaster to io.Writer so the debug log
// can be mirrored to SSE clients, one event per write.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.BroadcastMsg(msg)
	}
	return len(p), nil
}
