package db

import (
	"context"

	"gorm.io/gorm"

	"github.com/frankieli/instant_games/internal/modules/settlement/domain"
)

type ArchiveRepository struct {
	db *gorm.DB
}

func NewArchiveRepository(db *gorm.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// AutoMigrate creates the archive table
func (r *ArchiveRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.RoundArchive{})
}

func (r *ArchiveRepository) Create(ctx context.Context, archive *domain.RoundArchive) error {
	return r.db.WithContext(ctx).Create(archive).Error
}
