package main

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/zigaf/car-auction-sub000/internal/auth"
	"github.com/zigaf/car-auction-sub000/internal/bidding"
	"github.com/zigaf/car-auction-sub000/internal/bots"
	"github.com/zigaf/car-auction-sub000/internal/config"
	"github.com/zigaf/car-auction-sub000/internal/database"
	"github.com/zigaf/car-auction-sub000/internal/events"
	"github.com/zigaf/car-auction-sub000/internal/handlers"
	"github.com/zigaf/car-auction-sub000/internal/ledger"
	"github.com/zigaf/car-auction-sub000/internal/redisfeed"
	"github.com/zigaf/car-auction-sub000/internal/settlement"
	"github.com/zigaf/car-auction-sub000/internal/ws"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg := config.Load()

	log.Info("starting auction engine", "addr", cfg.ServerAddr)

	db, err := database.NewPostgres(cfg.PostgresURL)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.InitSchema(initCtx); err != nil {
		initCancel()
		log.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	initCancel()
	log.Info("connected to postgres")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	natsConn, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		log.Error("failed to connect to nats", "error", err)
		os.Exit(1)
	}
	defer natsConn.Close()
	log.Info("connected to nats")

	publisher, err := events.NewPublisher(rdb, natsConn, log)
	if err != nil {
		log.Error("failed to set up event stream", "error", err)
		os.Exit(1)
	}

	now := func() time.Time { return time.Now().UTC() }
	verifier := auth.NewVerifier(cfg.AuthSecret)
	ledgerSvc := ledger.NewService(db, now)
	biddingSvc := bidding.NewService(db, publisher, cfg.CommissionRate, cfg.SnipeWindow, cfg.SnipeExtension, now, log)
	scheduler := settlement.NewScheduler(db, publisher, cfg.CommissionRate, cfg.SettleInterval, now, log)
	botEngine := bots.NewEngine(db, biddingSvc, cfg.BotInterval, now, rand.Float64, log)

	manager := ws.NewManager(log)
	go manager.Run()

	subscriber, err := redisfeed.NewSubscriber(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	if err != nil {
		log.Error("failed to connect to redis feed", "error", err)
		os.Exit(1)
	}
	defer subscriber.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := subscriber.Listen(ctx, manager); err != nil {
			log.Error("feed subscriber stopped", "error", err)
		}
	}()
	go scheduler.Run(ctx)
	go botEngine.Run(ctx)

	limiter := rate.NewLimiter(rate.Limit(cfg.BidRatePerSec), cfg.BidRateBurst)
	router := mux.NewRouter()
	handlers.NewHandler(biddingSvc, ledgerSvc, db, verifier, limiter, log).SetupRoutes(router)
	ws.NewHandler(manager, verifier, log).Register(router)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("listening", "addr", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
	log.Info("stopped")
}
