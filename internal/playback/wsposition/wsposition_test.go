package wsposition_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/kinoforge/internal/playback/wsposition"
	"github.com/coder/websocket"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSource_RelaysPositionEvents(t *testing.T) {
	sent := make(chan struct{})
	srv := startServer(t, func(conn *websocket.Conn) {
		for _, ms := range []int{0, 1500, 4200} {
			data, _ := json.Marshal(map[string]int{"playback_time_ms": ms})
			_ = conn.Write(context.Background(), websocket.MessageText, data)
		}
		<-sent
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	src := wsposition.New(ctx, conn)
	defer src.Close()

	var got []int
	for i := 0; i < 3; i++ {
		select {
		case ms := <-src.Positions():
			got = append(got, ms)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for position event")
		}
	}
	close(sent)

	want := []int{0, 1500, 4200}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("position %d: got %d, want %d", i, got[i], w)
		}
	}
}

func TestSource_IgnoresMalformedFrames(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn) {
		_ = conn.Write(context.Background(), websocket.MessageText, []byte("not json"))
		data, _ := json.Marshal(map[string]int{"playback_time_ms": 900})
		_ = conn.Write(context.Background(), websocket.MessageText, data)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	src := wsposition.New(ctx, conn)
	defer src.Close()

	select {
	case ms := <-src.Positions():
		if ms != 900 {
			t.Errorf("expected the well-formed frame to survive, got %d", ms)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for position event")
	}
}

func TestSource_ClosesChannelWhenConnectionCloses(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn) {})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	src := wsposition.New(ctx, conn)
	select {
	case _, ok := <-src.Positions():
		if ok {
			t.Fatal("expected channel to be closed, got a value")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}
