// Package wsposition adapts a websocket stream of playback position events,
// pushed by a remote browser tab, into a playback.PositionSource.
package wsposition

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coder/websocket"
)

// event is the JSON frame a remote page sends on every timeupdate tick.
type event struct {
	PlaybackTimeMs int `json:"playback_time_ms"`
}

// Source reads position events off an already-established websocket
// connection and exposes them as a playback.PositionSource.
type Source struct {
	conn *websocket.Conn
	ch   chan int

	once sync.Once
	done chan struct{}
}

// New starts reading frames from conn in a background goroutine. Malformed
// frames are ignored; the read loop exits, closing the channel returned by
// Positions, when conn closes or ctx is canceled.
func New(ctx context.Context, conn *websocket.Conn) *Source {
	s := &Source{
		conn: conn,
		ch:   make(chan int, 32),
		done: make(chan struct{}),
	}
	go s.readLoop(ctx)
	return s
}

// Positions implements playback.PositionSource.
func (s *Source) Positions() <-chan int { return s.ch }

// Close terminates the underlying connection and stops the read loop.
func (s *Source) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close(websocket.StatusNormalClosure, "position tracking stopped")
	})
	return err
}

func (s *Source) readLoop(ctx context.Context) {
	defer close(s.ch)
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		select {
		case s.ch <- ev.PlaybackTimeMs:
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
