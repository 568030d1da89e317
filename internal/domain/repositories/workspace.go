package repositories

import (
	"gorm.io/gorm"

	"github.com/adsync-ai/adsync/internal/domain/models"
)

type WorkspaceRepository struct {
	*BaseRepository[models.Workspace]
}

func NewWorkspaceRepository(db *gorm.DB) *WorkspaceRepository {
	return &WorkspaceRepository{
		BaseRepository: NewBaseRepository[models.Workspace](db),
	}
}
