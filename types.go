package staffchat

import "encoding/json"

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an error returned by the staffchat backend.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// ============================================================================
// Directory Types
// ============================================================================

// Participant is one addressable person in the directory.
// ID is always the canonical id; see rosterEntry for how it is derived.
type Participant struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
	Email      string `json:"email,omitempty"`
}

// Channel is one addressable group conversation in the directory.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// rosterEntry is the loose shape directory responses arrive in. Different
// backend versions populate different id fields, so the canonical id is
// coalesced exactly once here and nowhere else.
type rosterEntry struct {
	MongoID    string `json:"_id"`
	ID         string `json:"id"`
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name"`
	Title      string `json:"title"`
	Department string `json:"department"`
	Email      string `json:"email"`
}

// canonicalID coalesces the possible id fields into one value.
// Returns "" when the entry carries no usable id at all.
func (r rosterEntry) canonicalID() string {
	switch {
	case r.MongoID != "":
		return r.MongoID
	case r.ID != "":
		return r.ID
	default:
		return r.EmployeeID
	}
}

func (r rosterEntry) displayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Title
}

// ============================================================================
// Message Types
// ============================================================================

// Message is one chat message as held in the ledger.
//
// Timestamp is epoch milliseconds. Deleted messages stay in the ledger with
// Deleted=true so ordering and id references remain stable; rendering them as
// placeholders is the presentation layer's job.
type Message struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName,omitempty"`
	ReceiverID string `json:"receiverId,omitempty"`
	ChatID     string `json:"chatId,omitempty"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
	Deleted    bool   `json:"deleted"`
}

// ============================================================================
// Wire Types
// ============================================================================

// Envelope is the wire format for all transport events, both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Command is a client-to-server transport event.
type Command struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Event type names on the wire.
const (
	EventRoomJoin       = "room.join"
	EventRoomLeave      = "room.leave"
	EventMessageSend    = "message.send"
	EventMessageDelete  = "message.delete"
	EventMessage        = "message"
	EventMessageDeleted = "message.deleted"
)

// RoomPayload addresses a join or leave command.
type RoomPayload struct {
	ConversationKey string `json:"conversationKey"`
}

// SendPayload is the outbound body of a message.send command.
// Exactly one of ReceiverID (direct) or ChatID (channel) is set.
type SendPayload struct {
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName,omitempty"`
	ReceiverID string `json:"receiverId,omitempty"`
	ChatID     string `json:"chatId,omitempty"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// DeletePayload is the body of a message.delete command and of the inbound
// message.deleted broadcast.
type DeletePayload struct {
	ConversationKey string `json:"conversationKey"`
	MessageID       string `json:"messageId"`
}

// InboundMessage is a message event as delivered by the transport. Fields may
// be missing on a partially-compliant backend; the session defaults them.
type InboundMessage struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName,omitempty"`
	ReceiverID string `json:"receiverId,omitempty"`
	ChatID     string `json:"chatId,omitempty"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// ============================================================================
// REST Result
// ============================================================================

// Result is the generic REST response envelope. Older backend deployments
// return the collection directly instead of wrapping it, so callers decode
// through the tolerant helpers in directory.go rather than this type alone.
type Result struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *APIError       `json:"error,omitempty"`
}

// Decode unmarshals the Data field into the provided type.
func (r *Result) Decode(v interface{}) error {
	if r.Data == nil {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}
