package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mx-orderdesk/internal/accounts"
	"mx-orderdesk/internal/auth"
	"mx-orderdesk/internal/config"
	"mx-orderdesk/internal/db"
	"mx-orderdesk/internal/engine"
	"mx-orderdesk/internal/health"
	"mx-orderdesk/internal/httpserver"
	"mx-orderdesk/internal/idgen"
	"mx-orderdesk/internal/logging"
	"mx-orderdesk/internal/margin"
	"mx-orderdesk/internal/markethours"
	"mx-orderdesk/internal/notify"
	"mx-orderdesk/internal/ordercache"
	"mx-orderdesk/internal/orderlog"
	"mx-orderdesk/internal/orders"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	startedAt := time.Now().UTC()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("postgres connect failed", zap.Error(err))
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis connect failed", zap.Error(err))
	}
	defer rdb.Close()

	var continuous []string
	for _, s := range strings.Split(cfg.ContinuousSyms, ",") {
		if s = strings.TrimSpace(s); s != "" {
			continuous = append(continuous, s)
		}
	}

	durable := orderlog.NewStore(pool)
	cache := ordercache.New(rdb)
	ids := idgen.NewGenerator(idgen.NewRedisCounter(rdb))
	bridge := engine.NewClient(cfg.EngineBaseURL, cfg.EngineTimeout)
	hours := markethours.NewOracle(continuous)
	hub := notify.NewHub()
	propagator := margin.NewPropagator(durable, cache, logger)
	accountSvc := accounts.NewService(pool)
	authSvc := auth.NewService(pool, cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)
	orderSvc := orders.NewService(durable, cache, bridge, ids, accountSvc, hours, propagator, hub, logger)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:     auth.NewHandler(authSvc),
		AccountsHandler: accounts.NewHandler(accountSvc),
		OrderHandler:    orders.NewHandler(orderSvc),
		HealthHandler:   health.NewHandler(pool, rdb, startedAt, cfg.HTTPAddr, cfg.InternalToken),
		AuthService:     authSvc,
		WSHandler:       httpserver.NewWSHandler(hub, authSvc, accountSvc, cfg.WebSocketOrigin, logger),
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	logger.Info("server listening", zap.String("addr", cfg.HTTPAddr))
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
}
