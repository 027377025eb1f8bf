package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"chatforge/internal/model"
)

type ConfigRepository struct {
	db *gorm.DB
}

func NewConfigRepository(db *gorm.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

func (r *ConfigRepository) Create(cfg *model.BotConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if err := r.db.Create(cfg).Error; err != nil {
		return fmt.Errorf("create config failed: %w", err)
	}
	return nil
}

func (r *ConfigRepository) GetByID(id string) (*model.BotConfig, error) {
	var cfg model.BotConfig
	if err := r.db.Where("id = ?", id).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get config failed: %w", err)
	}
	return &cfg, nil
}

func (r *ConfigRepository) ListByUserID(userID string) ([]model.BotConfig, error) {
	var configs []model.BotConfig
	if err := r.db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("list configs failed: %w", err)
	}
	return configs, nil
}

func (r *ConfigRepository) Save(cfg *model.BotConfig) error {
	if err := r.db.Save(cfg).Error; err != nil {
		return fmt.Errorf("save config failed: %w", err)
	}
	return nil
}

func (r *ConfigRepository) DeleteByID(id string) error {
	if err := r.db.Where("id = ?", id).Delete(&model.BotConfig{}).Error; err != nil {
		return fmt.Errorf("delete config failed: %w", err)
	}
	return nil
}
