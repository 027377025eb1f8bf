package model

import (
	"encoding/json"
	"time"
)

// DocumentChunk stores one retrievable text chunk and its embedding.
// ConfigID is the retrieval-namespace tag; every similarity search filters on
// it server-side. Embedding is stored as a JSON array of float32 for
// portability across SQL backends.
type DocumentChunk struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ConfigID   string    `gorm:"size:36;not null;index" json:"config_id"`
	Collection string    `gorm:"size:128;index" json:"collection_name"`
	Source     string    `gorm:"size:256;not null" json:"source"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Embedding  string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// EmbeddingVector returns the parsed embedding slice; empty on parse error.
func (c *DocumentChunk) EmbeddingVector() []float32 {
	if c.Embedding == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(c.Embedding), &v)
	return v
}

// SetEmbedding stores the embedding as JSON.
func (c *DocumentChunk) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		c.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	c.Embedding = string(b)
}
