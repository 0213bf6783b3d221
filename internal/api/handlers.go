package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"bankchat/pkg/types"
)

// CreateSessionRequest is the body of POST /api/chat/sessions
type CreateSessionRequest struct {
	Subject  *string `json:"subject"`
	Priority string  `json:"priority"`
}

type SessionResponse struct {
	Session *types.ChatSession `json:"session"`
}

type ListSessionsResponse struct {
	Sessions []*types.ChatSession `json:"sessions"`
}

type ListMessagesResponse struct {
	Messages []*types.ChatMessage `json:"messages"`
}

// AgentResponse is one agent's persisted status plus live presence
type AgentResponse struct {
	AgentID   int64     `json:"agentId"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
	Online    bool      `json:"online"`
}

type ListAgentsResponse struct {
	Agents []AgentResponse `json:"agents"`
}

type PresenceResponse struct {
	UserID int64 `json:"userId"`
	Online bool  `json:"online"`
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, types.ErrInvalidSessionID
	}
	return id, nil
}

// decodeBody decodes a JSON body; an empty body leaves v untouched
func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return types.ErrInvalidPayload
	}
	return nil
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.ListSessions(r.Context(), identityOf(r), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*types.ChatSession{}
	}
	JSON(w, http.StatusOK, ListSessionsResponse{Sessions: sessions})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	chat, err := s.sessions.CreateSession(r.Context(), identityOf(r), req.Subject, req.Priority)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, SessionResponse{Session: chat})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	chat, err := s.sessions.Authorize(r.Context(), id, identityOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, SessionResponse{Session: chat})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	messages, err := s.sessions.Transcript(r.Context(), id, identityOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if messages == nil {
		messages = []*types.ChatMessage{}
	}
	JSON(w, http.StatusOK, ListMessagesResponse{Messages: messages})
}

func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var update types.SessionUpdate
	if err := decodeBody(r, &update); err != nil {
		writeError(w, r, err)
		return
	}

	chat, err := s.sessions.UpdateSession(r.Context(), identityOf(r), id, update)
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload := types.SessionUpdatedPayload{AgentID: update.AgentID}
	if update.Status != nil {
		payload.Status = chat.Status
	}
	if update.Priority != nil {
		payload.Priority = chat.Priority
	}
	if err := s.hub.BroadcastSessionUpdate(chat.ID, payload); err != nil {
		log.Printf("Failed to broadcast update for session %d: %v", chat.ID, err)
	}

	JSON(w, http.StatusOK, SessionResponse{Session: chat})
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.sessions.AgentStatuses(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	agents := make([]AgentResponse, 0, len(statuses))
	for _, st := range statuses {
		agents = append(agents, AgentResponse{
			AgentID:   st.AgentID,
			Status:    st.Status,
			UpdatedAt: st.UpdatedAt,
			Online:    s.hub.IsOnline(st.AgentID),
		})
	}
	JSON(w, http.StatusOK, ListAgentsResponse{Agents: agents})
}

func (s *Server) presence(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, r, types.ErrInvalidPayload)
		return
	}
	JSON(w, http.StatusOK, PresenceResponse{UserID: userID, Online: s.hub.IsOnline(userID)})
}
