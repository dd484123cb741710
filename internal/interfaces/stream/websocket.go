// Package stream demonstrates the UI collaborator contract described in
// the runtime's design notes: a consumer drains the StreamEvent channel
// AgentLoop.SetEventSink wires and the RouterEvent channel
// ToolRouter.SetEventSink wires, and turns both into whatever a real
// front end needs. This package renders nothing itself — it is one
// example consumer (over a websocket), not the terminal UI the runtime
// explicitly leaves out of scope.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/coderunner/agentcore/internal/domain/entity"
	"github.com/coderunner/agentcore/pkg/safego"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// A terminal/IDE front end is expected to be same-origin or
	// explicitly configured; this example accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wireEvent is the JSON envelope written to the socket for both event
// kinds, tagged by "kind" so a client can demultiplex with one decoder.
type wireEvent struct {
	Kind  string             `json:"kind"` // "agent" | "router"
	Agent *entity.StreamEvent `json:"agent,omitempty"`
	Router *entity.RouterEvent `json:"router,omitempty"`
}

// Bridge fans both event channels out to every connected websocket
// client. Connections are write-only from the server's perspective — it
// never reads the socket beyond noticing it closed.
type Bridge struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewBridge creates a Bridge. Call Serve with agentEvents/routerEvents
// from a live AgentLoop/ToolRouter pair to start fanning events out.
func NewBridge(logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		logger:  logger.With(zap.String("component", "stream-bridge")),
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Handler upgrades incoming HTTP requests to websockets and registers
// each connection to receive fanned-out events until it disconnects.
func (b *Bridge) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		b.mu.Lock()
		b.clients[conn] = struct{}{}
		b.mu.Unlock()

		safego.Go(b.logger, "stream-bridge-drain", func() {
			b.drainUntilClosed(conn)
		})
	}
}

// drainUntilClosed blocks reading control frames so the connection's
// close is observed, then unregisters the client.
func (b *Bridge) drainUntilClosed(conn *websocket.Conn) {
	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Serve consumes both event channels until they close, broadcasting each
// event to every currently connected client. Run it in its own goroutine
// for the lifetime of one agent session.
func (b *Bridge) Serve(agentEvents <-chan entity.StreamEvent, routerEvents <-chan entity.RouterEvent) {
	for {
		select {
		case ev, ok := <-agentEvents:
			if !ok {
				agentEvents = nil
				break
			}
			b.broadcast(wireEvent{Kind: "agent", Agent: &ev})
		case ev, ok := <-routerEvents:
			if !ok {
				routerEvents = nil
				break
			}
			b.broadcast(wireEvent{Kind: "router", Router: &ev})
		}
		if agentEvents == nil && routerEvents == nil {
			return
		}
	}
}

func (b *Bridge) broadcast(ev wireEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Warn("failed to marshal stream event", zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			b.logger.Debug("dropping client after write error", zap.Error(err))
			conn.Close()
			delete(b.clients, conn)
		}
	}
}
