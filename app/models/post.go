package models

import (
	"time"

	"gorm.io/gorm"
)

// Post represents a blog article on the website
type Post struct {
	ID        uint64         `gorm:"primaryKey" json:"id"`
	Title     string         `gorm:"type:varchar(255)" json:"title" validate:"required,min=3,max=255"`
	Body      string         `gorm:"type:text" json:"body" validate:"required"`
	Slug      string         `gorm:"uniqueIndex;type:varchar(255)" json:"slug" validate:"required,min=3,max=255"`
	Topic     string         `gorm:"type:varchar(100);index" json:"topic"`
	Timestamp time.Time      `gorm:"index" json:"timestamp"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Post model
func (Post) TableName() string {
	return "posts"
}
