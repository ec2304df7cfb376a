/**
 * @description
 * This is the main entry point for the settlement-service. It is responsible
 * for initializing all components of the service, including configuration,
 * database connection, external service clients, the message broker, the
 * repository, the core application service, the hold sweeper and the HTTP
 * server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/gateway,
 *   internal/store: Internal packages for the service.
 * - pkg/bookingclient, pkg/fleetclient: Clients for the booking and fleet services.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/rentiva/settlement-service/internal/api"
	"github.com/rentiva/settlement-service/internal/app"
	"github.com/rentiva/settlement-service/internal/config"
	"github.com/rentiva/settlement-service/internal/gateway"
	"github.com/rentiva/settlement-service/internal/store"
	"github.com/rentiva/settlement-service/pkg/bookingclient"
	"github.com/rentiva/settlement-service/pkg/fleetclient"
	rmrabbit "github.com/rentiva/settlement-service/pkg/rabbitmq"
)

func main() {
	// Load a local .env file when present; real deployments set the
	// environment directly.
	if err := godotenv.Load(); err == nil {
		log.Println("level=info component=bootstrap msg=\"loaded .env file\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.GatewaySecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"gateway secret must be configured\" env=GATEWAY_SECRET_KEY")
	}
	if strings.TrimSpace(cfg.StaffJWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"staff jwt secret must be configured\" env=STAFF_JWT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting settlement-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 10
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish notification events.
	// This service only needs to publish, so we use a producer.
	var producer rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Clients for the booking and fleet services.
	bookingClient := bookingclient.NewClient(cfg.BookingServiceURL, cfg.InternalAPIKey)
	fleetClient := fleetclient.NewClient(cfg.FleetServiceURL, cfg.InternalAPIKey)

	// Optional Redis connection for rate limiting the payment routes.
	var redisClient *redis.Client
	rateLimitingEnabled := cfg.PaymentRateLimit > 0 || cfg.CallbackRateLimit > 0
	if rateLimitingEnabled {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; payment rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; payment rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; payment rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// The payment gateway signing client.
	gatewayClient := gateway.NewClient(
		cfg.GatewayBaseURL,
		cfg.GatewayMerchant,
		cfg.GatewaySecret,
		cfg.GatewayVersion,
		cfg.GatewayReturnURL,
	)

	notifier := app.NewAMQPNotifier(producer, cfg.NotificationTopic)
	evidenceStore := app.NewFileEvidenceStore(cfg.EvidenceDir)

	// Initialize the core application service with its dependencies.
	settlementService := app.NewService(
		repository,
		bookingClient,
		fleetClient,
		notifier,
		evidenceStore,
		gatewayClient,
	)

	var limiter app.RateLimiter
	if redisClient != nil {
		limiter = app.NewRedisPaymentRateLimiter(redisClient, cfg.RedisRateLimit)
	}

	// Start the periodic promotion of due deposit holds.
	sweeper := app.NewHoldSweeper(repository, cfg.HoldSweepSchedule)
	sweeper.Start()
	defer func() {
		<-sweeper.Stop().Done()
	}()

	// Initialize the API handlers.
	settlementHandlers := api.NewSettlementHandlers(settlementService)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/settlements", api.SettlementRoutes(settlementHandlers, cfg, limiter))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
