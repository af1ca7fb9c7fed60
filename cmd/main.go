package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"pluspoint/internal/caching"
	"pluspoint/internal/config"
	"pluspoint/internal/handlers"
	"pluspoint/internal/jobs/background"
	"pluspoint/internal/realtime"
	"pluspoint/internal/repositories"
	"pluspoint/internal/services"
	"pluspoint/pkg/database"
)

const version = "1.0.0"

func main() {
	// Database connection
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := database.NewPool(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Business configuration
	cfg := config.Default()
	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		cfg, err = config.Load(configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	// Redis configuration
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0
	if redisDBStr := os.Getenv("REDIS_DB"); redisDBStr != "" {
		if db, err := strconv.Atoi(redisDBStr); err == nil {
			redisDB = db
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Printf("WARN: Redis ping failed on startup: %v", err)
	}

	// MinIO configuration
	minioEndpoint := os.Getenv("MINIO_ENDPOINT")
	if minioEndpoint == "" {
		minioEndpoint = "localhost:9000"
	}
	minioAccessKey := os.Getenv("MINIO_ACCESS_KEY")
	if minioAccessKey == "" {
		minioAccessKey = "minioadmin"
	}
	minioSecretKey := os.Getenv("MINIO_SECRET_KEY")
	if minioSecretKey == "" {
		minioSecretKey = "minioadmin"
	}
	useSSL := os.Getenv("MINIO_USE_SSL") == "true"

	storageSvc, err := services.NewStorageService(minioEndpoint, minioAccessKey, minioSecretKey, useSSL)
	if err != nil {
		log.Fatalf("Failed to initialize storage service: %v", err)
	}

	webhookSecret := os.Getenv("RAZORPAY_WEBHOOK_SECRET")
	if webhookSecret == "" {
		log.Fatal("RAZORPAY_WEBHOOK_SECRET environment variable is required")
	}

	// Create repositories
	sequenceRepo := repositories.NewSequenceRepo(pool)
	productRepo := repositories.NewProductRepo(pool)
	orderRepo := repositories.NewOrderRepo(pool)
	invoiceRepo := repositories.NewInvoiceRepo(pool)

	// Create cache service and broadcaster
	cacheSvc := caching.NewRedisCacheService(redisAddr, redisPassword, redisDB)
	broadcaster := realtime.NewRedisBroadcaster(redisClient)

	// Create services
	taxSvc := services.NewTaxService(cfg.Tax.EInvoiceThreshold)
	orderSvc := services.NewOrderService(orderRepo, productRepo, sequenceRepo, cfg)
	invoiceSvc := services.NewInvoiceService(invoiceRepo, sequenceRepo, taxSvc, storageSvc, cfg)

	senders := []services.ChannelSender{
		services.NewEmailSender(),
		services.NewSMSSender(),
		services.NewWhatsAppSender(),
		services.NewPushSender(),
	}
	deliverySvc := services.NewDeliveryService(senders, invoiceRepo, cacheSvc, cfg)

	paymentEventSvc := services.NewPaymentEventService(orderRepo, orderSvc, invoiceSvc, deliverySvc, broadcaster, cacheSvc)

	// Create handlers
	orderHandlers := handlers.NewOrderHandlers(orderSvc, cacheSvc)
	invoiceHandlers := handlers.NewInvoiceHandlers(invoiceSvc, deliverySvc, orderSvc, cacheSvc)
	webhookHandlers := handlers.NewWebhookHandlers(paymentEventSvc, webhookSecret)
	healthHandlers := handlers.NewHealthHandlers(pool, redisClient, cacheSvc)

	// Background jobs
	retryInterval := time.Duration(cfg.Delivery.RetryIntervalMin) * time.Minute
	scheduler := background.NewJobScheduler(invoiceSvc, deliverySvc, retryInterval)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start job scheduler: %v", err)
	}
	defer scheduler.Stop()

	e := echo.New()
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)
	e.GET("/health/live", healthHandlers.LivenessCheck)

	e.POST("/webhooks/razorpay", webhookHandlers.RazorpayWebhook)

	v1 := e.Group("/v1")
	v1.POST("/orders", orderHandlers.CreateOrder)
	v1.GET("/orders", orderHandlers.ListOrders)
	v1.GET("/orders/:id", orderHandlers.GetOrder)
	v1.PATCH("/orders/:id/status", orderHandlers.UpdateOrderStatus)
	v1.POST("/orders/:id/cancel", orderHandlers.CancelOrder)
	v1.POST("/orders/:id/return", orderHandlers.ReturnOrder)
	v1.GET("/orders/:id/refund-quote", orderHandlers.GetRefundQuote)
	v1.POST("/orders/:id/invoices", invoiceHandlers.GenerateInvoice)

	v1.GET("/invoices/:id", invoiceHandlers.GetInvoice)
	v1.POST("/invoices/:id/payments", invoiceHandlers.RecordPayment)
	v1.POST("/invoices/:id/viewed", invoiceHandlers.MarkViewed)
	v1.POST("/invoices/:id/downloaded", invoiceHandlers.MarkDownloaded)
	v1.POST("/invoices/:id/einvoice", invoiceHandlers.GenerateEInvoice)
	v1.POST("/invoices/:id/generate-pdf", invoiceHandlers.GeneratePDF)
	v1.POST("/invoices/:id/delivery", invoiceHandlers.RecordDelivery)
	v1.GET("/invoices/:id/delivery", invoiceHandlers.GetDeliveryStatus)

	// Start server
	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("Invalid port %s: %v", portStr, err)
	}

	log.Printf("PlusPoint server v%s starting on port %d", version, port)

	e.Logger.Fatal(e.Start(fmt.Sprintf(":%d", port)))
}
