package model

import (
	"encoding/json"
	"time"
)

const (
	RoleHuman     = "human"
	RoleAssistant = "assistant"
)

// Message is one immutable turn in a session. The autoincrement ID doubles as
// the insertion-order surrogate; there is no separate sequence column.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"size:128;not null;index" json:"session_id"`
	UserID    string    `gorm:"size:36;not null" json:"user_id"`
	ConfigID  string    `gorm:"size:36;not null;index" json:"config_id"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	History   string    `gorm:"type:text" json:"-"` // serialized turn payload
	CreatedAt time.Time `json:"created_at"`
}

// TurnPayload is the canonical serialized form of a turn, stored in
// Message.History and returned by the history endpoint.
type TurnPayload struct {
	Type string   `json:"type"`
	Data TurnData `json:"data"`
}

type TurnData struct {
	Content string `json:"content"`
}

// EncodeTurn builds the serialized payload for a role/content pair. The
// assistant role is recorded as "ai" in the payload type.
func EncodeTurn(role, content string) string {
	t := role
	if role == RoleAssistant {
		t = "ai"
	}
	b, _ := json.Marshal(TurnPayload{Type: t, Data: TurnData{Content: content}})
	return string(b)
}

// Turn parses the stored payload, falling back to the row columns when the
// payload is missing or malformed.
func (m *Message) Turn() TurnPayload {
	if m.History != "" {
		var p TurnPayload
		if err := json.Unmarshal([]byte(m.History), &p); err == nil && p.Type != "" {
			return p
		}
	}
	t := m.Role
	if m.Role == RoleAssistant {
		t = "ai"
	}
	return TurnPayload{Type: t, Data: TurnData{Content: m.Content}}
}
