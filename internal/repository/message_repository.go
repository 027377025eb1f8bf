package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"chatforge/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create appends one message. Messages are never updated or reordered; the
// autoincrement id is the session's insertion order.
func (r *MessageRepository) Create(message *model.Message) error {
	if err := r.db.Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

func (r *MessageRepository) ListBySessionID(sessionID string) ([]model.Message, error) {
	var messages []model.Message
	if err := r.db.Where("session_id = ?", sessionID).Order("id ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}

// FirstBySessionID returns the earliest message of a session, or nil.
func (r *MessageRepository) FirstBySessionID(sessionID string) (*model.Message, error) {
	var message model.Message
	err := r.db.Where("session_id = ?", sessionID).Order("id ASC").First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("first message failed: %w", err)
	}
	return &message, nil
}

func (r *MessageRepository) DeleteBySessionIDs(sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	if err := r.db.Where("session_id IN ?", sessionIDs).Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("delete messages by sessions failed: %w", err)
	}
	return nil
}
