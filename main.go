package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/fanout"
	grpcserver "messaging-service/internal/grpc"
	"messaging-service/internal/handlers"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/services"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := ws.NewHub(logger)

	var relay fanout.Relay
	if cfg.RedisURL != "" {
		client, err := fanout.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		redisRelay := fanout.NewRedisRelay(client, cfg.RelayChannel, hub, logger)
		go redisRelay.Run(ctx)
		relay = redisRelay
		logger.Info("cross-instance relay enabled", "channel", cfg.RelayChannel)
	}
	dispatcher := fanout.NewDispatcher(hub, relay, logger)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	auditor := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment, logger)

	chats := services.NewChatService(store, dispatcher, auditor, logger)
	messages := services.NewMessageService(store, chats, dispatcher, auditor, logger, cfg.LastMessageConcurrency)
	users := services.NewUserService(store, chats, dispatcher, auditor, logger)

	wsHandler := ws.NewHandler(hub, store.Users, messages, logger, originChecker(cfg.AllowedOrigins))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(handlers.RequestID())

	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "amqp": rabbitmq.PublisherMode(publisher)})
	})

	auth := middleware.AuthMiddleware(cfg.JWTSecret, users)
	sendLimiter := middleware.NewSendLimiter(cfg.SendRatePerSecond, cfg.SendBurst)
	go sendLimiter.Run(ctx)
	handlers.RegisterRoutes(router, handlers.Routes{
		Chats:     handlers.NewChatHandler(chats, logger),
		Messages:  handlers.NewMessageHandler(messages, logger),
		Users:     handlers.NewUserHandler(users, logger),
		WebSocket: wsHandler.Handle,
		Auth:      auth,
		SendLimit: sendLimiter.Middleware(),
	})
	handlers.RegisterDebugRoutes(router.Group("/", auth), auditor, hub, cfg.Environment != "production")

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID", "X-Device-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: corsHandler(router),
	}

	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcSrv := grpcserver.NewServer(logger)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Error("server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	grpcSrv.Stop(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
	hub.CloseAll()
	logger.Info("shutdown complete")
	return runErr
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repositories.Store, func(), error) {
	if cfg.UseMemoryStore() {
		logger.Warn("using in-memory store, data is lost on restart")
		return repositories.NewMemoryStore().Store(), func() {}, nil
	}

	database, err := db.Connect(ctx, cfg.DBDSN, logger)
	if err != nil {
		return repositories.Store{}, nil, err
	}
	return repositories.NewPostgresStore(database), func() { _ = database.Close() }, nil
}

func originChecker(allowed []string) func(*http.Request) bool {
	if lo.Contains(allowed, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(allowed, origin)
	}
}
