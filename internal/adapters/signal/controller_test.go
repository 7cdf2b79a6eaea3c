package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Hush/internal/app"
	clientsignal "github.com/dkeye/Hush/internal/client/signal"
	"github.com/dkeye/Hush/internal/config"
	"github.com/dkeye/Hush/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func startServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	rooms := app.NewRoomRegistry()
	tokens := app.NewTokenStore(config.DefaultTokenTTL, nil)
	relay := app.NewRelay(rooms, app.DropPolicy{}, config.RelayScopeRoom)
	hub := app.NewHub(rooms, tokens, relay, app.NewRateLimiter(10, time.Minute, nil))
	go hub.Run(ctx)

	ctrl := NewSignalWSController(hub, Options{ReadLimit: 65536, PingPeriod: time.Second, SendBuffer: 16})
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("client_token", c.Query("ct"))
		ctrl.HandleSignal(ctx, c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func next(t *testing.T, c *clientsignal.Client) protocol.Message {
	t.Helper()
	select {
	case msg, ok := <-c.Incoming():
		if !ok {
			t.Fatal("connection closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return nil
}

func dial(t *testing.T, url string) (*clientsignal.Client, protocol.Connected) {
	t.Helper()
	c, err := clientsignal.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(c.Close)
	connected, ok := next(t, c).(protocol.Connected)
	if !ok || connected.ID == "" {
		t.Fatalf("expected connected event, got %#v", connected)
	}
	return c, connected
}

func TestRoomLifecycleOverWebSocket(t *testing.T) {
	url := startServer(t)
	a, aID := dial(t, url)
	b, bID := dial(t, url)

	a.Send(protocol.JoinRoom{RoomID: "demo", DisplayName: "Alice"})
	if users := next(t, a).(protocol.RoomUsers); len(users.Users) != 1 {
		t.Fatalf("snapshot %+v", users)
	}

	b.Send(protocol.JoinRoom{RoomID: "demo", DisplayName: "Bob"})
	if users := next(t, b).(protocol.RoomUsers); len(users.Users) != 2 {
		t.Fatalf("snapshot %+v", users)
	}
	if joined := next(t, a).(protocol.UserJoined); joined.ID != bID.ID {
		t.Fatalf("joined %+v", joined)
	}

	b.SendSignal(aID.ID, protocol.SignalOffer, []byte(`{"type":"offer","sdp":"v=0"}`))
	sig := next(t, a).(protocol.Signal)
	if sig.Sender != bID.ID || sig.Type != protocol.SignalOffer {
		t.Fatalf("signal %+v", sig)
	}

	b.Send(protocol.EncryptedChat{Payload: protocol.Sealed{Nonce: []byte("123456789012"), Ciphertext: []byte("opaque")}})
	chat := next(t, a).(protocol.EncryptedChat)
	if chat.Sender != bID.ID || chat.DisplayName != "Bob" || string(chat.Payload.Ciphertext) != "opaque" {
		t.Fatalf("chat %+v", chat)
	}

	b.Close()
	if left := next(t, a).(protocol.UserLeft); left.ID != bID.ID {
		t.Fatalf("left %+v", left)
	}
}

func TestDestroyDisconnectsMembers(t *testing.T) {
	url := startServer(t)
	a, _ := dial(t, url)
	b, _ := dial(t, url)
	a.Send(protocol.JoinRoom{RoomID: "demo", DisplayName: "Alice"})
	next(t, a)
	b.Send(protocol.JoinRoom{RoomID: "demo", DisplayName: "Bob"})
	next(t, b)
	next(t, a)

	a.Send(protocol.DestroyRoom{})
	for _, c := range []*clientsignal.Client{a, b} {
		if _, ok := next(t, c).(protocol.RoomDestroyed); !ok {
			t.Fatal("missing room-destroyed")
		}
		select {
		case _, ok := <-c.Incoming():
			if ok {
				t.Fatal("unexpected message after destroy")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("connection not severed")
		}
	}
}

func TestMalformedFrameGetsErrorAndStaysOpen(t *testing.T) {
	url := startServer(t)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	if _, _, err := ws.ReadMessage(); err != nil {
		t.Fatalf("read connected: %v", err)
	}

	ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"teleport","data":{}}`))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.DecodeFromServer(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e, ok := msg.(protocol.Error); !ok || e.Code != protocol.CodeUnknownEvent {
		t.Fatalf("got %#v", msg)
	}

	ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"join-room","data":{"roomId":"demo","displayName":"Eve"}}`))
	_, data, err = ws.ReadMessage()
	if err != nil {
		t.Fatalf("connection dropped after bad frame: %v", err)
	}
	if msg, err := protocol.DecodeFromServer(data); err != nil || msg.Event() != protocol.EventRoomUsers {
		t.Fatalf("got %s (%v)", data, err)
	}
}
