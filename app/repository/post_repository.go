package repository

import (
	"time"

	"github.com/openlocale/website/app/models"
	"gorm.io/gorm"
)

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a blog post repository backed by GORM.
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) GetBySlug(slug string) (*models.Post, error) {
	var post models.Post
	err := r.db.Where("slug = ?", slug).First(&post).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) ListPublished(offset, limit int) ([]models.Post, error) {
	var posts []models.Post
	err := r.db.Where("timestamp <= ?", time.Now()).
		Order("timestamp DESC").
		Offset(offset).Limit(limit).
		Find(&posts).Error
	return posts, err
}

func (r *postRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Post{}).Where("timestamp <= ?", time.Now()).Count(&count).Error
	return count, err
}

func (r *postRepository) Related(post *models.Post, limit int) ([]models.Post, error) {
	var posts []models.Post
	err := r.db.Where("topic = ? AND id <> ?", post.Topic, post.ID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&posts).Error
	return posts, err
}
