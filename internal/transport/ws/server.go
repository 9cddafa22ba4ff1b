// Package ws pushes live epoch frames to visualization clients and relays
// their pause/play commands back to the driver.
package ws

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bff.life/internal/protocol"
)

// Server fans frames out to every connected client. One producer (the epoch
// driver), many consumers; a client whose send fails or whose buffer is full
// is dropped without affecting the epoch.
type Server struct {
	log     *log.Logger
	command func(string)

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	out chan []byte
}

// NewServer builds a push server. command receives each inbound text
// command ("pause", "play"); it may be nil.
func NewServer(logger *log.Logger, command func(string)) *Server {
	return &Server{
		log:     logger,
		command: command,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: make(map[*client]struct{}),
	}
}

// ClientCount reports the number of attached clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Broadcast queues a frame for every client. Clients that cannot keep up
// are dropped.
func (s *Server) Broadcast(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.out <- frame:
		default:
			close(c.out)
			delete(s.clients, c)
		}
	}
}

// BroadcastFrame encodes and queues a frame message.
func (s *Server) BroadcastFrame(m protocol.FrameMsg) {
	b, err := m.Encode()
	if err != nil {
		s.log.Printf("ws: encode frame: %v", err)
		return
	}
	s.Broadcast(b)
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := &client{out: make(chan []byte, 8)}
		s.mu.Lock()
		s.clients[c] = struct{}{}
		n := len(s.clients)
		s.mu.Unlock()
		s.log.Printf("ws: client connected (%d total)", n)

		done := make(chan struct{})

		// Writer goroutine.
		go func() {
			defer close(done)
			for b := range c.out {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}()

		// Reader loop.
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			cmd := strings.TrimSpace(string(msg))
			switch cmd {
			case protocol.CmdPause, protocol.CmdPlay:
				s.log.Printf("ws: command %q", cmd)
				if s.command != nil {
					s.command(cmd)
				}
			}
		}

		s.drop(c)
		<-done
		s.mu.Lock()
		n = len(s.clients)
		s.mu.Unlock()
		s.log.Printf("ws: client disconnected (%d remaining)", n)
	}
}

// drop removes the client and closes its queue exactly once.
func (s *Server) drop(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.out)
	}
}
