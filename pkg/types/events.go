package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Inbound event names accepted from connections
const (
	EventJoinSession       = "join_session"
	EventLeaveSession      = "leave_session"
	EventSendMessage       = "send_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventUpdateAgentStatus = "update_agent_status"
)

// Outbound event names emitted to connections
const (
	EventConnectionStatus   = "connection_status"
	EventNewMessage         = "new_message"
	EventMessageError       = "message_error"
	EventUserTyping         = "user_typing"
	EventSessionUpdated     = "session_updated"
	EventAgentStatusChanged = "agent_status_changed"
	EventSessionJoined      = "session_joined"
)

// Values of the connection_status event
const (
	ConnectionConnected    = "connected"
	ConnectionDisconnected = "disconnected"
	ConnectionError        = "error"
)

// ErrorKind classifies a message_error so clients can branch without parsing text
type ErrorKind string

const (
	ErrorKindValidation  ErrorKind = "validation"
	ErrorKindNotFound    ErrorKind = "not_found"
	ErrorKindForbidden   ErrorKind = "forbidden"
	ErrorKindRateLimited ErrorKind = "rate_limited"
	ErrorKindInternal    ErrorKind = "internal"
)

// Envelope is the JSON frame exchanged in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is an event ready to be serialized to a connection
type Outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// NewOutbound builds an outbound event
func NewOutbound(event string, data interface{}) Outbound {
	return Outbound{Event: event, Data: data}
}

// Inbound is one decoded client event. The concrete type identifies the event.
type Inbound interface {
	EventName() string
}

// JoinSession subscribes the connection to a session room
type JoinSession struct {
	SessionID int64
}

// LeaveSession drops the connection from a session room
type LeaveSession struct {
	SessionID int64
}

// SendMessage posts message_text to a session
type SendMessage struct {
	SessionID   int64  `json:"sessionId"`
	MessageText string `json:"messageText"`
}

// TypingStart marks the sender as typing
type TypingStart struct {
	SessionID int64
}

// TypingStop clears the typing mark
type TypingStop struct {
	SessionID int64
}

// UpdateAgentStatus sets an admin's availability. Ignored for customers.
type UpdateAgentStatus struct {
	Status string `json:"status"`
}

func (JoinSession) EventName() string       { return EventJoinSession }
func (LeaveSession) EventName() string      { return EventLeaveSession }
func (SendMessage) EventName() string       { return EventSendMessage }
func (TypingStart) EventName() string       { return EventTypingStart }
func (TypingStop) EventName() string        { return EventTypingStop }
func (UpdateAgentStatus) EventName() string { return EventUpdateAgentStatus }

// ParseInbound decodes a raw frame into its typed event.
// Unknown event names return ErrUnknownEvent; malformed payloads return ErrInvalidPayload.
func ParseInbound(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	switch env.Event {
	case EventJoinSession, EventLeaveSession, EventTypingStart, EventTypingStop:
		id, err := decodeSessionID(env.Data)
		if err != nil {
			return nil, err
		}
		switch env.Event {
		case EventJoinSession:
			return JoinSession{SessionID: id}, nil
		case EventLeaveSession:
			return LeaveSession{SessionID: id}, nil
		case EventTypingStart:
			return TypingStart{SessionID: id}, nil
		default:
			return TypingStop{SessionID: id}, nil
		}

	case EventSendMessage:
		var msg SendMessage
		if err := decodeStrict(env.Data, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID <= 0 {
			return nil, ErrInvalidSessionID
		}
		return msg, nil

	case EventUpdateAgentStatus:
		// Accept both {"status":"busy"} and a bare "busy"
		var status string
		if err := json.Unmarshal(env.Data, &status); err == nil {
			return UpdateAgentStatus{Status: status}, nil
		}
		var upd UpdateAgentStatus
		if err := decodeStrict(env.Data, &upd); err != nil {
			return nil, err
		}
		return upd, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// decodeSessionID accepts a bare integer or an object {"sessionId": n}
func decodeSessionID(data json.RawMessage) (int64, error) {
	if len(data) == 0 {
		return 0, ErrInvalidSessionID
	}

	var id int64
	if err := json.Unmarshal(data, &id); err != nil {
		var obj struct {
			SessionID int64 `json:"sessionId"`
		}
		if err := decodeStrict(data, &obj); err != nil {
			return 0, err
		}
		id = obj.SessionID
	}

	if id <= 0 {
		return 0, ErrInvalidSessionID
	}
	return id, nil
}

func decodeStrict(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return ErrInvalidPayload
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// NewMessagePayload is the new_message event body
type NewMessagePayload struct {
	ChatMessage
	SenderName string `json:"senderName"`
}

// ErrorPayload is the message_error event body
type ErrorPayload struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// TypingPayload is the user_typing event body
type TypingPayload struct {
	SessionID int64  `json:"sessionId"`
	UserID    int64  `json:"userId"`
	UserName  string `json:"userName"`
	IsTyping  bool   `json:"isTyping"`
}

// SessionUpdatedPayload is the session_updated event body.
// Admin-originated updates may leave any field empty.
type SessionUpdatedPayload struct {
	SessionID int64  `json:"sessionId"`
	Status    string `json:"status,omitempty"`
	Priority  string `json:"priority,omitempty"`
	AgentID   *int64 `json:"agentId,omitempty"`
	AgentName string `json:"agentName,omitempty"`
}

// AgentStatusPayload is the agent_status_changed event body
type AgentStatusPayload struct {
	AgentID int64  `json:"agentId"`
	Status  string `json:"status"`
}

// SessionJoinedPayload acknowledges a successful join_session
type SessionJoinedPayload struct {
	SessionID int64 `json:"sessionId"`
}
