package hub

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"bankchat/internal/metrics"
	"bankchat/internal/router"
	"bankchat/internal/session"
	"bankchat/internal/tracker"
	"bankchat/pkg/types"
)

type eventKind int

const (
	eventConnect eventKind = iota
	eventDisconnect
	eventInbound
	eventReject
	eventSessionUpdate
)

// event is one unit of work for the hub goroutine
type event struct {
	kind      eventKind
	handle    string
	identity  *types.Identity
	inbound   types.Inbound
	reason    error
	sessionID int64
	update    types.SessionUpdatedPayload
}

// Hub is the session coordinator. All tracker mutation and every store
// round trip triggered by a connection happens on its single run goroutine,
// in the order events were queued.
type Hub struct {
	events          chan event
	shutdownChannel chan struct{}
	done            chan struct{}

	trackers *tracker.Set
	sessions *session.Manager
	router   *router.Router
	limiter  *router.RateLimiter

	storeTimeout    time.Duration
	cleanupInterval time.Duration

	running bool
	mu      sync.RWMutex
}

// NewHub creates a new hub
func NewHub(sessions *session.Manager, trackers *tracker.Set, rt *router.Router, limiter *router.RateLimiter) *Hub {
	return &Hub{
		events:          make(chan event, 1000),
		shutdownChannel: make(chan struct{}),
		done:            make(chan struct{}),
		trackers:        trackers,
		sessions:        sessions,
		router:          rt,
		limiter:         limiter,
		storeTimeout:    10 * time.Second,
		cleanupInterval: time.Minute,
	}
}

// SetStoreTimeout bounds each store call made while handling an event
func (h *Hub) SetStoreTimeout(d time.Duration) {
	if d > 0 {
		h.storeTimeout = d
	}
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting chat hub...")

	go h.run(ctx)

	return nil
}

// Stop shuts the hub down and waits for the run loop to exit
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false

	select {
	case <-h.shutdownChannel:
	default:
		close(h.shutdownChannel)
	}
	h.mu.Unlock()

	log.Println("Stopping chat hub...")
	<-h.done

	return nil
}

// IsRunning reports whether the hub is processing events
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Connect queues the arrival of a new authenticated connection
func (h *Hub) Connect(handle string, identity *types.Identity) error {
	if identity == nil {
		return ErrNoIdentity
	}
	return h.enqueue(event{kind: eventConnect, handle: handle, identity: identity})
}

// Disconnect queues the departure of a connection
func (h *Hub) Disconnect(handle string, identity *types.Identity) error {
	if identity == nil {
		return ErrNoIdentity
	}
	return h.enqueue(event{kind: eventDisconnect, handle: handle, identity: identity})
}

// Dispatch queues a decoded client event
func (h *Hub) Dispatch(handle string, identity *types.Identity, inbound types.Inbound) error {
	if identity == nil {
		return ErrNoIdentity
	}
	if inbound == nil {
		return types.ErrInvalidPayload
	}
	return h.enqueue(event{kind: eventInbound, handle: handle, identity: identity, inbound: inbound})
}

// Reject queues a validation error for a frame the transport could not decode
func (h *Hub) Reject(handle string, reason error) error {
	return h.enqueue(event{kind: eventReject, handle: handle, reason: reason})
}

// BroadcastSessionUpdate pushes a session_updated event to everyone viewing sessionID
func (h *Hub) BroadcastSessionUpdate(sessionID int64, payload types.SessionUpdatedPayload) error {
	payload.SessionID = sessionID
	return h.enqueue(event{kind: eventSessionUpdate, sessionID: sessionID, update: payload})
}

// ConnectedUsers returns the number of identities with at least one connection
func (h *Hub) ConnectedUsers() int {
	return h.trackers.Presence.Count()
}

// ActiveRooms returns the number of sessions with at least one viewer
func (h *Hub) ActiveRooms() int {
	return h.trackers.Rooms.Count()
}

// IsOnline reports whether the identity holds any connection
func (h *Hub) IsOnline(identityID int64) bool {
	return h.trackers.Presence.IsOnline(identityID)
}

// enqueue blocks until the run loop accepts the event, giving readers backpressure
func (h *Hub) enqueue(ev event) error {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return ErrHubNotRunning
	}

	select {
	case h.events <- ev:
		return nil
	case <-h.shutdownChannel:
		return ErrHubNotRunning
	}
}

// run is the main hub processing loop
func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer log.Println("Hub processing stopped")

	cleanup := time.NewTicker(h.cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case ev := <-h.events:
			h.process(ctx, ev)

		case <-cleanup.C:
			if h.limiter != nil {
				if removed := h.limiter.Cleanup(); removed > 0 {
					log.Printf("Rate limiter cleanup removed %d idle entries", removed)
				}
			}

		case <-h.shutdownChannel:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			h.mu.Lock()
			h.running = false
			select {
			case <-h.shutdownChannel:
			default:
				close(h.shutdownChannel)
			}
			h.mu.Unlock()
			return
		}
	}
}

// process handles one event and refreshes the live gauges
func (h *Hub) process(ctx context.Context, ev event) {
	start := time.Now()

	switch ev.kind {
	case eventConnect:
		metrics.EventsTotal.WithLabelValues("connect").Inc()
		h.handleConnect(ctx, ev.handle, ev.identity)
	case eventDisconnect:
		metrics.EventsTotal.WithLabelValues("disconnect").Inc()
		h.handleDisconnect(ctx, ev.handle, ev.identity)
	case eventInbound:
		metrics.EventsTotal.WithLabelValues(ev.inbound.EventName()).Inc()
		h.handleInbound(ctx, ev.handle, ev.identity, ev.inbound)
	case eventReject:
		log.Printf("Rejected frame from %s: %v", ev.handle, ev.reason)
		h.sendError(ev.handle, types.ErrorKindValidation, MsgInvalidPayload)
	case eventSessionUpdate:
		h.router.ToRoom(ev.sessionID, types.EventSessionUpdated, ev.update, "")
	}

	metrics.EventLatency.Observe(time.Since(start).Seconds())
	metrics.ConnectedUsers.Set(float64(h.trackers.Presence.Count()))
	metrics.ActiveRooms.Set(float64(h.trackers.Rooms.Count()))
}

func (h *Hub) handleInbound(ctx context.Context, handle string, identity *types.Identity, inbound types.Inbound) {
	switch in := inbound.(type) {
	case types.JoinSession:
		h.handleJoin(ctx, handle, identity, in.SessionID)
	case types.LeaveSession:
		h.handleLeave(handle, identity, in.SessionID)
	case types.SendMessage:
		h.handleSend(ctx, handle, identity, in)
	case types.TypingStart:
		h.handleTypingStart(handle, identity, in.SessionID)
	case types.TypingStop:
		h.handleTypingStop(handle, identity, in.SessionID)
	case types.UpdateAgentStatus:
		h.handleAgentStatus(ctx, identity, in.Status)
	default:
		log.Printf("Ignoring unknown event %T from %s", inbound, handle)
	}
}

func (h *Hub) handleConnect(ctx context.Context, handle string, identity *types.Identity) {
	first := h.trackers.Presence.Register(identity.ID, handle)

	if err := h.router.ToHandle(handle, types.EventConnectionStatus, types.ConnectionConnected); err != nil {
		log.Printf("Failed to send connection status to %s: %v", handle, err)
	}

	log.Printf("Connected: user=%d handle=%s admin=%t first=%t", identity.ID, handle, identity.IsAdmin, first)

	if identity.IsAdmin && first {
		h.setAgentStatus(ctx, identity.ID, types.AgentStatusOnline)
	}
}

func (h *Hub) handleDisconnect(ctx context.Context, handle string, identity *types.Identity) {
	last := h.trackers.Presence.Deregister(identity.ID, handle)

	for _, sessionID := range h.trackers.Rooms.LeaveAll(handle) {
		h.stopTyping(sessionID, identity, handle)
	}
	if last {
		// typing_start does not require membership, so sweep every session
		for _, sessionID := range h.trackers.Typing.StopAll(identity.ID) {
			h.broadcastTypingStopped(sessionID, identity, handle)
		}
	}

	log.Printf("Disconnected: user=%d handle=%s last=%t", identity.ID, handle, last)

	if identity.IsAdmin && last {
		h.setAgentStatus(ctx, identity.ID, types.AgentStatusOffline)
	}
}

func (h *Hub) handleJoin(ctx context.Context, handle string, identity *types.Identity, sessionID int64) {
	sctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	if _, err := h.sessions.Authorize(sctx, sessionID, identity); err != nil {
		h.sendSessionError(handle, identity, sessionID, err, MsgJoinFailed)
		return
	}

	// Claim before joining so a failed join leaves no membership behind
	updated, claimed, err := h.sessions.ClaimIfUnassigned(sctx, sessionID, identity)
	if err != nil {
		log.Printf("Failed to assign agent %d to session %d: %v", identity.ID, sessionID, err)
		h.sendError(handle, types.ErrorKindInternal, MsgJoinFailed)
		return
	}

	h.trackers.Rooms.Join(sessionID, handle)
	if err := h.router.ToHandle(handle, types.EventSessionJoined, types.SessionJoinedPayload{SessionID: sessionID}); err != nil {
		log.Printf("Failed to acknowledge join of session %d to %s: %v", sessionID, handle, err)
	}

	if claimed {
		h.broadcastAssignment(updated, identity)
	}
}

func (h *Hub) handleLeave(handle string, identity *types.Identity, sessionID int64) {
	h.trackers.Rooms.Leave(sessionID, handle)
	h.stopTyping(sessionID, identity, handle)
}

func (h *Hub) handleSend(ctx context.Context, handle string, identity *types.Identity, msg types.SendMessage) {
	text, err := h.sessions.NormalizeText(msg.MessageText)
	switch {
	case errors.Is(err, types.ErrEmptyMessage):
		h.sendError(handle, types.ErrorKindValidation, MsgTextRequired)
		return
	case errors.Is(err, types.ErrMessageTooLong):
		h.sendError(handle, types.ErrorKindValidation, MsgTextTooLong)
		return
	case err != nil:
		h.sendError(handle, types.ErrorKindValidation, MsgInvalidPayload)
		return
	}

	if h.limiter != nil && !h.limiter.Allow(identity.ID) {
		h.sendError(handle, types.ErrorKindRateLimited, MsgRateLimited)
		return
	}

	sctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	chat, err := h.sessions.Authorize(sctx, msg.SessionID, identity)
	if err != nil {
		h.sendSessionError(handle, identity, msg.SessionID, err, MsgSendFailed)
		return
	}

	message, err := h.sessions.PostMessage(sctx, chat, identity, text)
	if err != nil {
		log.Printf("Failed to persist message from %d in session %d: %v", identity.ID, msg.SessionID, err)
		h.sendError(handle, types.ErrorKindInternal, MsgSendFailed)
		return
	}
	metrics.MessagesTotal.WithLabelValues(message.SenderType).Inc()

	h.router.ToRoom(chat.ID, types.EventNewMessage, types.NewMessagePayload{
		ChatMessage: *message,
		SenderName:  identity.DisplayName(),
	}, "")

	h.stopTyping(chat.ID, identity, handle)

	updated, claimed, err := h.sessions.ClaimIfUnassigned(sctx, chat.ID, identity)
	if err != nil {
		log.Printf("Failed to assign agent %d to session %d: %v", identity.ID, chat.ID, err)
		return
	}
	if claimed {
		h.broadcastAssignment(updated, identity)
	}
}

func (h *Hub) handleTypingStart(handle string, identity *types.Identity, sessionID int64) {
	if !h.trackers.Typing.Start(sessionID, identity.ID) {
		return
	}
	h.router.ToRoom(sessionID, types.EventUserTyping, types.TypingPayload{
		SessionID: sessionID,
		UserID:    identity.ID,
		UserName:  identity.DisplayName(),
		IsTyping:  true,
	}, handle)
}

func (h *Hub) handleTypingStop(handle string, identity *types.Identity, sessionID int64) {
	h.stopTyping(sessionID, identity, handle)
}

func (h *Hub) handleAgentStatus(ctx context.Context, identity *types.Identity, status string) {
	if !identity.IsAdmin {
		log.Printf("Ignoring agent status from non-admin user %d", identity.ID)
		return
	}
	if !types.IsValidAgentStatus(status) {
		log.Printf("Ignoring invalid agent status %q from user %d", status, identity.ID)
		return
	}
	h.setAgentStatus(ctx, identity.ID, status)
}

// stopTyping clears the identity's typing flag and tells the rest of the room if it changed
func (h *Hub) stopTyping(sessionID int64, identity *types.Identity, handle string) {
	if !h.trackers.Typing.Stop(sessionID, identity.ID) {
		return
	}
	h.broadcastTypingStopped(sessionID, identity, handle)
}

func (h *Hub) broadcastTypingStopped(sessionID int64, identity *types.Identity, handle string) {
	h.router.ToRoom(sessionID, types.EventUserTyping, types.TypingPayload{
		SessionID: sessionID,
		UserID:    identity.ID,
		UserName:  identity.DisplayName(),
		IsTyping:  false,
	}, handle)
}

// setAgentStatus persists the status, then announces it to every connection
func (h *Hub) setAgentStatus(ctx context.Context, agentID int64, status string) {
	sctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	if err := h.sessions.SetAgentStatus(sctx, agentID, status); err != nil {
		log.Printf("Failed to persist agent %d status %s: %v", agentID, status, err)
		return
	}

	h.router.ToAll(types.EventAgentStatusChanged, types.AgentStatusPayload{
		AgentID: agentID,
		Status:  status,
	})
}

func (h *Hub) broadcastAssignment(chat *types.ChatSession, agent *types.Identity) {
	h.router.ToRoom(chat.ID, types.EventSessionUpdated, types.SessionUpdatedPayload{
		SessionID: chat.ID,
		Status:    chat.Status,
		AgentID:   chat.AgentID,
		AgentName: agent.DisplayName(),
	}, "")
}

// sendSessionError reports a failed session lookup or authorization
func (h *Hub) sendSessionError(handle string, identity *types.Identity, sessionID int64, err error, internalMsg string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		h.sendError(handle, types.ErrorKindNotFound, MsgSessionNotFound)
	case errors.Is(err, session.ErrAccessDenied):
		log.Printf("Access denied: user=%d session=%d", identity.ID, sessionID)
		h.sendError(handle, types.ErrorKindForbidden, MsgAccessDenied)
	default:
		log.Printf("Session lookup failed: user=%d session=%d: %v", identity.ID, sessionID, err)
		h.sendError(handle, types.ErrorKindInternal, internalMsg)
	}
}

func (h *Hub) sendError(handle string, kind types.ErrorKind, message string) {
	metrics.ErrorsTotal.WithLabelValues(string(kind)).Inc()
	if err := h.router.ToHandle(handle, types.EventMessageError, types.ErrorPayload{
		Kind:    kind,
		Message: message,
	}); err != nil {
		log.Printf("Failed to send error to %s: %v", handle, err)
	}
}
