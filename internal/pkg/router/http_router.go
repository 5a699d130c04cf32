package router

import (
	"github.com/openlocale/website/app/controllers"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Initialize controllers with their collaborators
	controllers.InitializePaymentController()
	controllers.InitializeNewsController()

	payment := app.Group("/payment")
	payment.Get("/:uuid", controllers.HandlePaymentShow)
	payment.Post("/:uuid", controllers.HandlePaymentMethod)
	payment.Get("/:uuid/complete", controllers.HandlePaymentComplete)
	payment.Post("/:uuid/complete", controllers.HandlePaymentComplete)
	payment.Post("/:uuid/customer", controllers.HandleCustomerUpdate)
	payment.Get("/:uuid/invoice", controllers.HandleInvoiceDownload)

	app.Get("/news", controllers.HandleNewsIndex)
	app.Get("/news/:slug", controllers.HandleNewsShow)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
