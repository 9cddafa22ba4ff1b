package ws

import (
	"log"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"bff.life/internal/protocol"
)

func startServer(t *testing.T, command func(string)) (*Server, *websocket.Conn) {
	t.Helper()
	s := NewServer(log.New(os.Stderr, "[ws-test] ", 0), command)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return s, conn
}

func waitClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", s.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_BroadcastFrame(t *testing.T) {
	s, conn := startServer(t, nil)
	waitClients(t, s, 1)

	s.BroadcastFrame(protocol.FrameMsg{
		Epoch:   12,
		Entropy: 4.2,
		Grid:    [][][3]int{{{1, 2, 3}}},
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	frame, err := protocol.DecodeFrame(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Epoch != 12 || frame.Grid[0][0] != [3]int{1, 2, 3} {
		t.Fatalf("frame = %+v", frame)
	}
}

func TestServer_PauseCommand(t *testing.T) {
	got := make(chan string, 2)
	_, conn := startServer(t, func(cmd string) { got <- cmd })

	if err := conn.WriteMessage(websocket.TextMessage, []byte("pause")); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case cmd := <-got:
		if cmd != protocol.CmdPause {
			t.Fatalf("command = %q, want pause", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command not delivered")
	}

	// Unknown commands are ignored, valid ones still flow after.
	_ = conn.WriteMessage(websocket.TextMessage, []byte("bogus"))
	_ = conn.WriteMessage(websocket.TextMessage, []byte("play"))
	select {
	case cmd := <-got:
		if cmd != protocol.CmdPlay {
			t.Fatalf("command = %q, want play", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("play not delivered")
	}
}

func TestServer_DisconnectDropsClient(t *testing.T) {
	s, conn := startServer(t, nil)
	waitClients(t, s, 1)
	_ = conn.Close()
	waitClients(t, s, 0)

	// Broadcasting with no clients is a no-op.
	s.Broadcast([]byte("{}"))
}
