package model

import (
	"encoding/json"
	"time"
)

// BotConfig is a tenant-defined bot: persona, model choice, prompt template
// and the document set backing its retrieval namespace.
type BotConfig struct {
	ID             string    `gorm:"primaryKey;size:36" json:"config_id"`
	UserID         string    `gorm:"size:36;index" json:"user_id"`
	BotName        string    `gorm:"size:128;not null" json:"bot_name"`
	BotAvatar      string    `gorm:"size:128" json:"bot_avatar"`
	Introduction   string    `gorm:"type:text" json:"introduction"`
	ModelName      string    `gorm:"size:64;not null" json:"model_name"`
	Temperature    float64   `gorm:"not null" json:"temperature"`
	ResponseDelay  int       `gorm:"not null;default:0" json:"response_timeout"` // seconds
	IsPublic       bool      `gorm:"not null;default:false" json:"is_public"`
	PromptTemplate string    `gorm:"type:text;not null" json:"prompt_template"`
	Collection     string    `gorm:"size:128;index" json:"collection_name"`
	Documents      string    `gorm:"type:text" json:"-"` // JSON array of filenames
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DocumentList returns the parsed document filename list; empty on parse error.
func (c *BotConfig) DocumentList() []string {
	if c.Documents == "" {
		return nil
	}
	var names []string
	_ = json.Unmarshal([]byte(c.Documents), &names)
	return names
}

// SetDocumentList stores the filename list as JSON.
func (c *BotConfig) SetDocumentList(names []string) {
	if len(names) == 0 {
		c.Documents = "[]"
		return
	}
	b, _ := json.Marshal(names)
	c.Documents = string(b)
}
