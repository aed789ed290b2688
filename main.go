package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"

	"foodbackend/internal/config"
	"foodbackend/internal/database"
	"foodbackend/internal/handlers"
	"foodbackend/internal/middleware"
	"foodbackend/internal/notification"
	"foodbackend/internal/orders"
	"foodbackend/internal/payment"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "foodbackend",
		Short: "Food ordering API with payment verification and order notifications",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.Load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(notifierCmd())
	rootCmd.AddCommand(indexesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func notifierCmd() *cobra.Command {
	var prefetch int
	cmd := &cobra.Command{
		Use:   "notifier",
		Short: "Consume order notifications from RabbitMQ and deliver them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotifier(prefetch)
		},
	}
	cmd.Flags().IntVar(&prefetch, "prefetch", 10, "unacknowledged deliveries held at once")
	return cmd
}

func indexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create the MongoDB indexes and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, db, err := connect()
			if err != nil {
				return err
			}
			defer database.Disconnect(client)
			return database.EnsureIndexes(db)
		},
	}
}

func connect() (*mongo.Client, *mongo.Database, error) {
	client, err := database.Connect(config.AppEnv.MongoURI)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	db := client.Database(config.AppEnv.DBName)
	log.Println("MongoDB connected to:", db.Name())
	return client, db, nil
}

func newNotifier(db *mongo.Database) *notification.Notifier {
	cfg := config.AppEnv

	var email notification.EmailSender
	if cfg.SMTPConfigured() {
		email = notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
		})
	} else {
		log.Println("[NOTIFY] [WARN] SMTP not configured, email notifications disabled")
	}

	var sms notification.SMSSender
	switch {
	case cfg.TwilioConfigured():
		sms = notification.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom)
	case cfg.TextBeltKey != "":
		sms = notification.NewTextBeltSender(cfg.TextBeltURL, cfg.TextBeltKey)
	default:
		log.Println("[NOTIFY] [WARN] no SMS provider configured, SMS notifications disabled")
	}

	dispatcher := notification.NewDispatcher(sms, email, cfg.NotifyTimeout)
	return notification.NewNotifier(dispatcher, database.NewUserRepository(db))
}

func runServe() error {
	cfg := config.AppEnv
	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers.RegisterValidators()

	client, db, err := connect()
	if err != nil {
		return err
	}
	defer database.Disconnect(client)

	if err := database.EnsureIndexes(db); err != nil {
		log.Printf("⚠️ index warning: %v", err)
	}

	var publisher notification.Publisher
	if cfg.AMQPURL != "" {
		amqpPublisher, err := notification.DialAMQPPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return fmt.Errorf("amqp: %w", err)
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
		log.Println("[NOTIFY] [INFO] publishing notifications to RabbitMQ queue", cfg.AMQPQueue)
	} else {
		queue := notification.NewQueue(newNotifier(db).HandlerFunc(), cfg.NotifyQueueSize, cfg.NotifyWorkers, cfg.NotifyTimeout)
		queue.Start()
		defer queue.Close()
		publisher = queue
	}

	policy := orders.PolicyForward
	if cfg.StrictStatusTransitions {
		policy = orders.PolicyStrict
	}

	store := database.NewOrderRepository(db)
	gateway := payment.NewGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.GatewayTimeout)
	if !cfg.GatewayConfigured() {
		log.Println("[PAYMENT] [WARN] Razorpay credentials missing, create-order runs in test mode")
	}

	deps := handlers.Deps{
		Users:       database.NewUserRepository(db),
		Ratings:     database.NewRatingRepository(db),
		Orders:      orders.NewService(store, database.NewCatalogRepository(db), orders.NewStateMachine(policy), publisher),
		Ledger:      orders.NewLedger(store, publisher),
		Gateway:     gateway,
		Verifier:    payment.NewVerifier(cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret, cfg.PaymentTestMode),
		Ping:        func(ctx context.Context) error { return database.Ping(ctx, db) },
		JWTSecret:   cfg.JWTSecret,
		TokenTTL:    cfg.AccessTokenTTL,
		CORSOrigins: cfg.CORSOrigins,
		StartedAt:   time.Now(),
	}

	stopSweep := make(chan struct{})
	defer close(stopSweep)
	if cfg.RateLimitEnabled {
		deps.APILimiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitTTL)
		deps.PaymentLimiter = middleware.NewRateLimiter(cfg.PaymentRateRPS, cfg.PaymentRateBurst, cfg.RateLimitTTL)
		deps.APILimiter.StartSweeper(time.Minute, stopSweep)
		deps.PaymentLimiter.StartSweeper(time.Minute, stopSweep)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	handlers.RegisterRoutes(r, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server running on port %s (%s)", cfg.Port, cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runNotifier(prefetch int) error {
	cfg := config.AppEnv
	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required for the notifier")
	}

	client, db, err := connect()
	if err != nil {
		return err
	}
	defer database.Disconnect(client)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("[NOTIFY] [INFO] consuming queue", cfg.AMQPQueue)
	err = notification.ConsumeAMQP(ctx, cfg.AMQPURL, cfg.AMQPQueue, prefetch, newNotifier(db).HandlerFunc())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
