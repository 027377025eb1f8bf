package repository

import (
	"fmt"

	"gorm.io/gorm"

	"chatforge/internal/model"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) CreateBatch(chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.Create(&chunks).Error; err != nil {
		return fmt.Errorf("create chunks batch failed: %w", err)
	}
	return nil
}

// ListByConfigID returns every chunk tagged with configID. The config-id tag
// is the retrieval namespace; callers never see chunks outside it.
func (r *ChunkRepository) ListByConfigID(configID string) ([]model.DocumentChunk, error) {
	var chunks []model.DocumentChunk
	if err := r.db.Where("config_id = ?", configID).Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by config failed: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepository) DeleteByConfigID(configID string) error {
	if err := r.db.Where("config_id = ?", configID).Delete(&model.DocumentChunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks by config failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) DeleteByConfigIDAndSource(configID, source string) error {
	err := r.db.Where("config_id = ? AND source = ?", configID, source).Delete(&model.DocumentChunk{}).Error
	if err != nil {
		return fmt.Errorf("delete chunks by source failed: %w", err)
	}
	return nil
}
