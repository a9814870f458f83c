package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"courierdesk/config"
	"courierdesk/distance"
	"courierdesk/engine"
	"courierdesk/messaging"
	"courierdesk/mirror"
	"courierdesk/pricestate"
	"courierdesk/pricing"
	"courierdesk/store"
	"courierdesk/www"
)

var Version = "dev"

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zc.Build()
}

func ratesFrom(p config.PricingConfig) pricing.RateConfig {
	return pricing.RateConfig{
		BaseRateVan:       p.BaseRateVan,
		BaseRateBike:      p.BaseRateBike,
		LondonMultiplier:  p.LondonMultiplier,
		UrgentMultiplier:  p.UrgentMultiplier,
		VATRate:           p.VATRate,
		BikeDistanceLimit: p.BikeDistanceLimit,
		BikeMinimumCharge: p.BikeMinimumCharge,
	}
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "courierdesk.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("courierdesk", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	defaults := ratesFrom(cfg.Pricing)
	if err := defaults.Validate(); err != nil {
		log.Fatal("courierdesk: pricing defaults", zap.Error(err))
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatal("courierdesk: open database", zap.Error(err))
	}
	defer db.Close()
	log.Info("courierdesk: database open", zap.String("driver", cfg.Database.Driver))

	// Redis
	var (
		rateCache     *pricestate.RedisStore
		distanceCache distance.Cache
	)
	if cfg.Redis.Address != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("courierdesk: redis not available, running without cache", zap.Error(err))
		} else {
			log.Info("courierdesk: redis connected", zap.String("address", cfg.Redis.Address))
		}
		cancel()
		// Both caches tolerate redis going away and coming back.
		rateCache = pricestate.NewRedisStore(redisClient)
		distanceCache = distance.NewRedisCache(redisClient, cfg.Maps.CacheTTL)
	}

	// Rate table
	rates := pricestate.NewManager(db, rateCache, defaults, log.Named("pricestate"))
	syncCtx, syncCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rates.SyncRedisFromSQL(syncCtx); err != nil {
		log.Warn("courierdesk: redis sync from SQL", zap.Error(err))
	}
	syncCancel()

	// Distance provider
	var resolver engine.Resolver
	if cfg.Maps.APIKey != "" {
		client := distance.NewClient(cfg.Maps.BaseURL, cfg.Maps.APIKey, cfg.Maps.Region, cfg.Maps.Timeout)
		resolver = distance.NewAdapter(client, distanceCache, cfg.Maps.Timeout, log.Named("distance"))
	} else {
		log.Warn("courierdesk: no maps api key, quotes use the estimated distance")
	}

	// Messaging client
	var msgClient *messaging.Client
	if cfg.Messaging.Enabled {
		msgClient = messaging.NewClient(&cfg.Messaging, log.Named("messaging"))
		if err := msgClient.Connect(); err != nil {
			log.Warn("courierdesk: messaging connect failed, events stay queued", zap.Error(err))
		} else {
			log.Info("courierdesk: messaging connected", zap.String("backend", cfg.Messaging.Backend))
		}
		defer msgClient.Close()
	}

	// Engine
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		Distance:   resolver,
		Rates:      rates,
		MsgClient:  msgClient,
		Mirror:     mirror.NewClient(cfg.Mirror.URL, cfg.Mirror.Timeout),
		Logger:     log.Named("engine"),
	})
	eng.Start()
	defer eng.Stop()

	// Web server
	handler, stopWeb := www.NewRouter(eng, log.Named("www"))

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("courierdesk: web server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("courierdesk: web server", zap.Error(err))
		}
	}()

	log.Info("courierdesk: ready", zap.String("version", Version))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("courierdesk: shutting down")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Info("courierdesk: stopped")
}
