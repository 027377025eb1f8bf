package repository

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chatforge/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Ensure creates the metadata record for a session id if none exists yet.
// The conditional insert on the unique session_id index makes concurrent
// callers race safely: the first writer wins, later calls are no-ops.
func (r *SessionRepository) Ensure(session *model.ChatSession) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoNothing: true,
	}).Create(session).Error
	if err != nil {
		return fmt.Errorf("ensure session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetBySessionID(sessionID string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.Where("session_id = ?", sessionID).First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

// ListForUserAndConfig returns sessions owned by userID or by the anonymous
// sentinel, restricted to configID, newest first.
func (r *SessionRepository) ListForUserAndConfig(userID, configID string) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	err := r.db.
		Where("config_id = ? AND user_id IN ?", configID, []string{userID, model.AnonymousUser}).
		Order("id DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

// Claim reassigns an anonymous session to userID. The user_id predicate keeps
// the reassignment exactly-once: a session already claimed is left alone.
func (r *SessionRepository) Claim(sessionID, userID string) error {
	err := r.db.Model(&model.ChatSession{}).
		Where("session_id = ? AND user_id = ?", sessionID, model.AnonymousUser).
		Update("user_id", userID).Error
	if err != nil {
		return fmt.Errorf("claim session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListByConfigID(configID string) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	if err := r.db.Where("config_id = ?", configID).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions by config failed: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) DeleteByConfigID(configID string) error {
	if err := r.db.Where("config_id = ?", configID).Delete(&model.ChatSession{}).Error; err != nil {
		return fmt.Errorf("delete sessions by config failed: %w", err)
	}
	return nil
}
