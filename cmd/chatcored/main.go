package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/config"
	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/logging"
	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	fenced := flag.Bool("fenced", false, "wrap bot replies in fenced JSON documents")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store server.HistoryStore
	if cfg.Server.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Server.RedisURL)
		if err != nil {
			log.Fatal("invalid redis url", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		log.Info("connected to redis")
		store = server.NewRedisStore(rdb, cfg.Server.HistoryWindow, cfg.Server.SessionTTL)
	} else {
		log.Info("no redis url configured, using in-memory history store")
		store = server.NewMemoryStore(cfg.Server.HistoryWindow)
	}

	var responder server.Responder = server.EchoResponder{}
	if *fenced {
		responder = server.FencedResponder{}
	}

	srv := server.New(server.Options{
		Store:          store,
		Responder:      responder,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TypingDelay:    cfg.Server.TypingDelay,
		Logger:         log,
	})

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Routes(),
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info("chat backend listening", zap.Int("port", cfg.Server.Port))
	if err := httpSrv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal("server error", zap.Error(err))
	}
}
