package main

import (
	"log"
	"time"

	"github.com/openlocale/website/app/controllers"
	"github.com/openlocale/website/internal/pkg/database"
	"github.com/openlocale/website/internal/pkg/env"
)

// Batch pass over recurring payments that are due for renewal. Intended to
// run daily from cron; a renewal that is refused (retired method, three
// failed attempts) is logged and skipped, it is not an error.
func main() {
	env.SetupEnvFile()
	database.SetupDatabase()
	controllers.InitializePaymentController()

	service := controllers.PaymentService()

	due, err := service.Repo().DueRecurring(time.Now())
	if err != nil {
		log.Fatalf("Failed to query due payments: %v", err)
	}
	log.Printf("Found %d payments due for renewal", len(due))

	for i := range due {
		payment := &due[i]
		renewed, err := service.RepeatPayment(payment, nil)
		if err != nil {
			log.Printf("Payment %s: renewal failed: %v", payment.UUID, err)
			continue
		}
		if !renewed {
			log.Printf("Payment %s: renewal refused", payment.UUID)
			continue
		}
		log.Printf("Payment %s: renewal created", payment.UUID)
	}
}
