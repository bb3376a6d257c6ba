package web

import "sync"

// FrameBroadcaster fans JPEG frames out to MJPEG clients. Each client holds
// at most one pending frame; a client still busy with the previous frame
// misses the new one.
type FrameBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}

	// OnDrop, if set, is called once per frame skipped for a slow client.
	OnDrop func()
}

func NewFrameBroadcaster() *FrameBroadcaster {
	return &FrameBroadcaster{
		clients: make(map[chan []byte]struct{}),
	}
}

// Subscribe registers a video client. The cleanup function must be called
// when the client goes away.
func (b *FrameBroadcaster) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 1)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Clients returns the number of connected video clients.
func (b *FrameBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish hands frame to every client without blocking. The frame must not
// be modified afterwards.
func (b *FrameBroadcaster) Publish(frame []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- frame:
		default:
			if b.OnDrop != nil {
				b.OnDrop()
			}
		}
	}
}
