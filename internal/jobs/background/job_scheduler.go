package background

import (
	"context"
	"log"
	"sync"
	"time"

	"pluspoint/internal/services"

	"github.com/go-co-op/gocron/v2"
)

// JobScheduler manages the pipeline's recurring background jobs
type JobScheduler struct {
	scheduler       gocron.Scheduler
	invoiceService  services.InvoiceServiceInterface
	deliveryService services.DeliveryServiceInterface
	retryInterval   time.Duration
	jobs            map[string]gocron.Job
	mu              sync.RWMutex
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler(invoiceService services.InvoiceServiceInterface,
	deliveryService services.DeliveryServiceInterface, retryInterval time.Duration) *JobScheduler {

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	js := &JobScheduler{
		scheduler:       scheduler,
		invoiceService:  invoiceService,
		deliveryService: deliveryService,
		retryInterval:   retryInterval,
		jobs:            make(map[string]gocron.Job),
	}

	js.registerJobs()

	return js
}

// Start starts the job scheduler
func (js *JobScheduler) Start() error {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// registerJobs registers all background jobs
func (js *JobScheduler) registerJobs() {
	js.mu.Lock()
	defer js.mu.Unlock()

	// Overdue sweep - hourly
	overdueJob, err := js.scheduler.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(js.markOverdueInvoices),
		gocron.WithName("invoice-overdue-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create overdue sweep job: %v", err)
	} else {
		js.jobs["overdue-sweep"] = overdueJob
	}

	// Delivery retry - at the configured interval
	retryJob, err := js.scheduler.NewJob(
		gocron.DurationJob(js.retryInterval),
		gocron.NewTask(js.retryFailedDispatches),
		gocron.WithName("delivery-retry"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create delivery retry job: %v", err)
	} else {
		js.jobs["delivery-retry"] = retryJob
	}

	log.Printf("Registered %d background jobs", len(js.jobs))
}

func (js *JobScheduler) markOverdueInvoices() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	flipped, err := js.invoiceService.MarkOverdueInvoices(ctx, time.Now())
	if err != nil {
		log.Printf("Overdue sweep failed: %v", err)
		return
	}
	if flipped > 0 {
		log.Printf("Marked %d invoices overdue", flipped)
	}
}

func (js *JobScheduler) retryFailedDispatches() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := js.deliveryService.RetryFailedDispatches(ctx); err != nil {
		log.Printf("Delivery retry run failed: %v", err)
	}
}
