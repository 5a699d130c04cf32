package repository

import (
	"github.com/openlocale/website/app/models"
)

// PostRepository defines the interface for blog post database operations
type PostRepository interface {
	GetBySlug(slug string) (*models.Post, error)
	ListPublished(offset, limit int) ([]models.Post, error)
	Count() (int64, error)
	Related(post *models.Post, limit int) ([]models.Post, error)
}
