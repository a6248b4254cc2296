package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return strings.Replace(srv.URL, "http", "ws", 1)
}

func klineJSON(ts int64, closed bool) []byte {
	return []byte(fmt.Sprintf(
		`{"e":"kline","k":{"t":%d,"s":"BTCUSDT","i":"1m","o":"100","h":"101","l":"99","c":"100.5","v":"12","x":%t,"q":"1200","n":7}}`,
		ts, closed))
}

func TestLiveFeedEmitsClosedCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 3; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, klineJSON(base+int64(i)*60000, true)); err != nil {
				return
			}
		}
		// An in-progress candle must not surface.
		conn.WriteMessage(websocket.TextMessage, klineJSON(base+3*60000, false))
		conn.ReadMessage() // hold the connection until the client drops it
	}))
	defer srv.Close()

	f := NewLiveFeed(LiveConfig{WSBaseURL: wsURL(srv)}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	data, _, err := f.Stream(ctx, "BTCUSDT", "1m", 0, 0)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	for i := 0; i < 3; i++ {
		select {
		case snap := <-data:
			if snap.Timestamp != base+int64(i)*60000 {
				t.Errorf("snapshot %d timestamp = %d", i, snap.Timestamp)
			}
			if snap.Close != 100.5 {
				t.Errorf("snapshot %d close = %f, want 100.5", i, snap.Close)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no snapshot %d within deadline", i)
		}
	}

	select {
	case snap := <-data:
		t.Errorf("unexpected extra snapshot %+v", snap)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLiveFeedCancelReleasesReader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := int64(0); ; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, klineJSON(base+i*60000, true)); err != nil {
				return
			}
		}
	}))

	goroutines := runtime.NumGoroutine()

	f := NewLiveFeed(LiveConfig{WSBaseURL: wsURL(srv)}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	data, _, err := f.Stream(ctx, "BTCUSDT", "1m", 0, 0)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	// Read nothing so the internal buffers fill and the reader parks
	// on a full channel, then cancel.
	time.Sleep(150 * time.Millisecond)
	cancel()

	deadline := time.After(2 * time.Second)
	for open := true; open; {
		select {
		case _, ok := <-data:
			open = ok
		case <-deadline:
			t.Fatal("stream did not close after cancel")
		}
	}
	srv.Close()

	// Every feed goroutine, the blocked reader included, must unwind.
	for end := time.Now().Add(3 * time.Second); ; {
		if runtime.NumGoroutine() <= goroutines {
			break
		}
		if time.Now().After(end) {
			t.Fatalf("goroutines = %d, want <= %d after cancel", runtime.NumGoroutine(), goroutines)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
