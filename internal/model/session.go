package model

import "time"

// AnonymousUser is the sentinel owner for sessions started without a verified
// identity. Such sessions can later be claimed by an authenticated user.
const AnonymousUser = "anonymous"

// ChatSession is the per-session metadata record. There is at most one row
// per session id; creation is an idempotent upsert on the first message.
type ChatSession struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	SessionID string    `gorm:"size:128;not null;uniqueIndex" json:"session_id"`
	UserID    string    `gorm:"size:36;not null;index" json:"user_id"`
	ConfigID  string    `gorm:"size:36;not null;index" json:"config_id"`
	CreatedAt time.Time `json:"created_at"`
}
