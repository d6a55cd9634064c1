// Package wire defines the WebSocket protocol of the onboarding form.
package wire

import (
	"encoding/json"

	"github.com/matthewbaird/onboarding/internal/notify"
)

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	// "select", "toggle_mode", "edit", "save", "refresh", "funding_open",
	// "funding_submit", "funding_close", "funding_remove", "funding_confirm",
	// "ping"
	Type string          `json:"type"`
	ID   string          `json:"id"` // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// SelectData is the payload for "select" messages. Either the structured
// reference or the legacy element key ("member-john-smith-owner-details")
// may be sent.
type SelectData struct {
	Kind     string `json:"kind,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
	Section  string `json:"section,omitempty"`
	Key      string `json:"key,omitempty"`
}

// EditData is the payload for "edit" messages. Checked, when present, sets a
// checkbox and Value is ignored.
type EditData struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Checked *bool  `json:"checked,omitempty"`
}

// FundingRefData addresses one funding instance. A missing or negative
// index on "funding_open" means a new instance.
type FundingRefData struct {
	Type  string `json:"type"`
	Index *int   `json:"index,omitempty"`
}

// FundingSubmitData is the payload for "funding_submit" messages.
type FundingSubmitData struct {
	Fields map[string]string `json:"fields"`
}

// FundingConfirmData is the payload for "funding_confirm" messages.
type FundingConfirmData struct {
	Confirm bool `json:"confirm"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "session", "view", "toast", "error", "pong"
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// SessionData carries session information.
type SessionData struct {
	SessionID string `json:"session_id"`
	Client    string `json:"client,omitempty"`
	Restored  bool   `json:"restored"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ToastData carries a notification with its display time.
type ToastData struct {
	ID      string       `json:"id"`
	Level   notify.Level `json:"level"`
	Message string       `json:"message"`
	TTLMS   int64        `json:"ttl_ms"`
}

func toastData(t notify.Toast) ToastData {
	return ToastData{ID: t.ID, Level: t.Level, Message: t.Message, TTLMS: t.TTL.Milliseconds()}
}
