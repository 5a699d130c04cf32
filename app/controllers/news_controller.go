package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/openlocale/website/app/repository"
	"github.com/openlocale/website/internal/pkg/database"
	"gorm.io/gorm"
)

const newsPageSize = 10

var postRepo repository.PostRepository

// InitializeNewsController wires the blog repository.
func InitializeNewsController() {
	postRepo = repository.NewPostRepository(database.GetDB())
}

// HandleNewsIndex lists published blog posts, newest first.
func HandleNewsIndex(c *fiber.Ctx) error {
	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	posts, err := postRepo.ListPublished((page-1)*newsPageSize, newsPageSize)
	if err != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	total, err := postRepo.Count()
	if err != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(fiber.Map{
		"posts": posts,
		"page":  page,
		"total": total,
	})
}

// HandleNewsShow returns a single post with up to three related ones.
func HandleNewsShow(c *fiber.Ctx) error {
	post, err := postRepo.GetBySlug(c.Params("slug"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "post not found"})
		}
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	related, err := postRepo.Related(post, 3)
	if err != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(fiber.Map{
		"post":    post,
		"related": related,
	})
}
