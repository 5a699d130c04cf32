package router

import (
	"github.com/openlocale/website/app/controllers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	api.Post("/payment", controllers.HandlePaymentCreate)
	api.Post("/vat", controllers.HandleFetchVAT)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
