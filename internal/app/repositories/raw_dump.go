package repositories

import (
	"gorm.io/gorm"

	"ima-agent/internal/app/models"
	"ima-agent/internal/pkg/storage"
)

type RawDumpRepository struct {
	db *gorm.DB
}

func NewRawDumpRepository() *RawDumpRepository {
	return &RawDumpRepository{db: storage.DB}
}

// Create 保存一次尝试的原始响应
func (r *RawDumpRepository) Create(dump *models.RawDump) error {
	return r.db.Create(dump).Error
}

// ListByTrace 获取一次提问所有尝试的记录
func (r *RawDumpRepository) ListByTrace(traceID string) ([]models.RawDump, error) {
	var dumps []models.RawDump
	err := r.db.Where("trace_id = ?", traceID).Order("attempt").Find(&dumps).Error
	return dumps, err
}
