package feed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_BroadcastsDecisions(t *testing.T) {
	hub := NewHub(Options{})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	defer hub.Close()

	a, b := dial(t, srv), dial(t, srv)
	waitFor(t, func() bool { return hub.Clients() == 2 })

	fee := int64(25)
	at := time.Date(2024, 5, 1, 8, 0, 10, 0, time.UTC)
	hub.Publish(Decision{Kind: KindExit, Outcome: "ok", Plate: "WA12345", Gate: "g1", EventID: 3, FeePLN: &fee, At: at})

	for _, conn := range []*websocket.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if typ != websocket.TextMessage {
			t.Fatalf("frame type = %d", typ)
		}
		var got Decision
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("bad json %q: %v", msg, err)
		}
		if got.Kind != KindExit || got.Plate != "WA12345" || got.FeePLN == nil || *got.FeePLN != 25 || !got.At.Equal(at) {
			t.Fatalf("decision mismatch: %+v", got)
		}
	}
}

func TestHub_PublishStampsTime(t *testing.T) {
	hub := NewHub(Options{})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	waitFor(t, func() bool { return hub.Clients() == 1 })
	hub.Publish(Decision{Kind: KindEntry, Outcome: "ok"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Decision
	_ = json.Unmarshal(msg, &got)
	if got.At.IsZero() {
		t.Fatalf("At should be stamped: %s", msg)
	}
}

func TestHub_ClientDisconnectIsNoticed(t *testing.T) {
	hub := NewHub(Options{})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	waitFor(t, func() bool { return hub.Clients() == 1 })
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	waitFor(t, func() bool { return hub.Clients() == 0 })
}

func TestHub_CloseDisconnectsAndRejects(t *testing.T) {
	hub := NewHub(Options{})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dial(t, srv)
	waitFor(t, func() bool { return hub.Clients() == 1 })
	hub.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("want going-away close, got %v", err)
	}
	if hub.Clients() != 0 {
		t.Fatalf("clients after close = %d", hub.Clients())
	}

	late := dial(t, srv)
	_ = late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("late client: want going-away close, got %v", err)
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(Options{SendBuffer: 1})
	c := &client{send: make(chan []byte, 1)}
	hub.clients[c] = struct{}{}

	hub.Publish(Decision{Kind: KindEntry, Outcome: "ok"})
	if hub.Clients() != 1 {
		t.Fatalf("first publish should fit the buffer")
	}
	hub.Publish(Decision{Kind: KindEntry, Outcome: "ok"})
	if hub.Clients() != 0 {
		t.Fatalf("slow client should be dropped")
	}
	<-c.send
	if _, ok := <-c.send; ok {
		t.Fatalf("send channel should be closed")
	}
	// Removing twice is harmless.
	hub.remove(c)
}

func TestDiscard(t *testing.T) {
	Discard.Publish(Decision{Kind: KindEntry})
}
