package main

import (
	"github.com/Okemwag/Subscribee/internal/gateway"
	"github.com/Okemwag/Subscribee/internal/handler"
	"github.com/Okemwag/Subscribee/internal/middleware"
	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/Okemwag/Subscribee/internal/scheduler"
	"github.com/Okemwag/Subscribee/internal/service"
	"github.com/Okemwag/Subscribee/pkg/config"
	"github.com/Okemwag/Subscribee/pkg/database"
	"github.com/Okemwag/Subscribee/pkg/jwtutil"
	"github.com/Okemwag/Subscribee/pkg/logger"
	"github.com/Okemwag/Subscribee/pkg/metrics"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load("billing-service")
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting billing service...", cfg.LogConfig()...)

	// Initialize database
	db, err := database.InitDB(&cfg.DB)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.MigrateModels(
		&model.Business{},
		&model.Customer{},
		&model.SubscriptionPlan{},
		&model.Subscription{},
		&model.Invoice{},
		&model.Payment{},
	); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	log.Info("Database connection established and migrations completed")

	// JWT utility for business-scoped tokens
	jwtUtil := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:      cfg.JWT.SigningKey,
		ExpirationHours: cfg.JWT.ExpirationHours,
	})

	// Payment gateways, selected per payment method
	gateways := gateway.NewSelector(
		gateway.NewCardGateway(cfg.Gateway.CardDeclineLimit, cfg.Gateway.SimulatedLatency),
		gateway.NewMobileMoneyGateway(cfg.Gateway.SimulatedLatency),
		gateway.NewBankTransferGateway(cfg.Gateway.SimulatedLatency),
	)

	// Service layer
	businessService := service.NewBusinessService(db)
	customerService := service.NewCustomerService(db)
	planService := service.NewPlanService(db)
	subscriptionService := service.NewSubscriptionService(db)
	invoiceService := service.NewInvoiceService(db)
	paymentService := service.NewPaymentService(db, gateways, invoiceService,
		cfg.Gateway.DispatchTimeout, cfg.Scheduler.PaymentRetryThreshold)

	// Handlers
	businessHandler := handler.NewBusinessHandler(businessService, jwtUtil)
	customerHandler := handler.NewCustomerHandler(customerService, subscriptionService, invoiceService, paymentService)
	planHandler := handler.NewPlanHandler(planService)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionService, invoiceService, paymentService)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService)
	paymentHandler := handler.NewPaymentHandler(paymentService)

	// Prometheus metrics
	httpMetrics := metrics.NewHTTPMetrics(cfg.Metrics.Prefix)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(httpMetrics.Middleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(metrics.GetPrometheusHandler()))
	e.POST("/businesses", businessHandler.Register)

	// Tenant-scoped API
	api := e.Group("/api/v1")
	api.Use(middleware.BusinessAuthMiddleware(jwtUtil))

	business := api.Group("/business")
	business.GET("", businessHandler.GetProfile)
	business.PUT("", businessHandler.UpdateProfile)
	business.DELETE("", businessHandler.Deactivate)

	customers := api.Group("/customers")
	customers.POST("", customerHandler.Create)
	customers.GET("", customerHandler.List)
	customers.GET("/:id", customerHandler.Get)
	customers.PUT("/:id", customerHandler.Update)
	customers.DELETE("/:id", customerHandler.Delete)
	customers.POST("/:id/deactivate", customerHandler.Deactivate)
	customers.GET("/:id/subscriptions", customerHandler.Subscriptions)
	customers.GET("/:id/invoices", customerHandler.InvoiceHistory)
	customers.GET("/:id/payments", customerHandler.PaymentHistory)

	plans := api.Group("/plans")
	plans.POST("", planHandler.Create)
	plans.GET("", planHandler.List)
	plans.GET("/:id", planHandler.Get)
	plans.PUT("/:id", planHandler.Update)
	plans.DELETE("/:id", planHandler.Deactivate)

	subscriptions := api.Group("/subscriptions")
	subscriptions.POST("", subscriptionHandler.Create)
	subscriptions.GET("", subscriptionHandler.List)
	subscriptions.GET("/:id", subscriptionHandler.Get)
	subscriptions.PUT("/:id", subscriptionHandler.Update)
	subscriptions.PUT("/:id/status", subscriptionHandler.UpdateStatus)
	subscriptions.POST("/:id/cancel", subscriptionHandler.Cancel)
	subscriptions.POST("/:id/renew", subscriptionHandler.Renew)
	subscriptions.GET("/:id/invoices", subscriptionHandler.Invoices)
	subscriptions.GET("/:id/payments", subscriptionHandler.Payments)

	invoices := api.Group("/invoices")
	invoices.POST("", invoiceHandler.Create)
	invoices.GET("/overdue", invoiceHandler.ListOverdue)
	invoices.GET("/:id", invoiceHandler.Get)
	invoices.PUT("/:id/status", invoiceHandler.UpdateStatus)
	invoices.PUT("/:id/amounts", invoiceHandler.UpdateAmounts)
	invoices.POST("/:id/pay", invoiceHandler.MarkPaid)

	payments := api.Group("/payments")
	payments.POST("", paymentHandler.Process)
	payments.GET("/:id", paymentHandler.Get)
	payments.POST("/:id/refund", paymentHandler.Refund)
	payments.POST("/:id/cancel", paymentHandler.Cancel)

	// Periodic billing sweeps
	if cfg.Scheduler.Enabled {
		sched := scheduler.New(cfg.Scheduler, subscriptionService, invoiceService, paymentService)
		if err := sched.Start(); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
		defer sched.Stop()
		log.Info("Billing sweeps scheduled")
	}

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
