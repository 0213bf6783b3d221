package websocket

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"bankchat/pkg/interfaces"
	"bankchat/pkg/types"
)

// EventSink receives connection lifecycle and decoded client events
type EventSink interface {
	Connect(handle string, identity *types.Identity) error
	Disconnect(handle string, identity *types.Identity) error
	Dispatch(handle string, identity *types.Identity, inbound types.Inbound) error
	Reject(handle string, reason error) error
}

// Handler upgrades authenticated requests and pumps their frames into the sink
type Handler struct {
	registry *Registry
	provider interfaces.IdentityProvider
	sink     EventSink
	opts     Options
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler. An empty origin list, or one containing "*", accepts any origin.
func NewHandler(registry *Registry, provider interfaces.IdentityProvider, sink EventSink, opts Options, allowedOrigins []string) *Handler {
	h := &Handler{
		registry: registry,
		provider: provider,
		sink:     sink,
		opts:     opts.withDefaults(),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      originChecker(allowedOrigins),
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, origin := range allowed {
		if origin == "*" {
			allowed = nil
			break
		}
	}
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if strings.EqualFold(candidate, origin) {
				return true
			}
		}
		return false
	}
}

// ServeHTTP authenticates before upgrading. Requests without a valid identity never get a socket.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.provider.Authenticate(r)
	if err != nil || identity == nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, identity, h.opts)

	if err := h.registry.Register(wsConn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = wsConn.Close()
		return
	}

	if err := h.sink.Connect(wsConn.Handle(), identity); err != nil {
		log.Printf("Failed to announce connection %s: %v", wsConn.Handle(), err)
		h.registry.Unregister(wsConn)
		_ = wsConn.Close()
		return
	}

	go h.readPump(wsConn)
}

// readPump decodes frames until the socket fails, then runs the disconnect path
func (h *Handler) readPump(conn *Connection) {
	handle := conn.Handle()
	identity := conn.Identity()

	defer func() {
		if err := h.sink.Disconnect(handle, identity); err != nil {
			log.Printf("Failed to announce disconnect of %s: %v", handle, err)
		}
		h.registry.Unregister(conn)
		_ = conn.Close()
	}()

	conn.conn.SetReadLimit(h.opts.MaxMessageSize)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error for %s: %v", handle, err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			err = h.sink.Reject(handle, types.ErrInvalidPayload)
		} else {
			err = h.forward(handle, identity, data)
		}
		if err != nil {
			log.Printf("Dropping connection %s: %v", handle, err)
			return
		}
	}
}

func (h *Handler) forward(handle string, identity *types.Identity, data []byte) error {
	inbound, err := types.ParseInbound(data)
	if errors.Is(err, types.ErrUnknownEvent) {
		log.Printf("Ignoring frame from %s: %v", handle, err)
		return nil
	}
	if err != nil {
		return h.sink.Reject(handle, err)
	}
	return h.sink.Dispatch(handle, identity, inbound)
}
