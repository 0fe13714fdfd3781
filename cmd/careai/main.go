package main

import (
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"

	"github.com/careai/careai-go/internal/config"
	"github.com/careai/careai-go/internal/engine"
	"github.com/careai/careai-go/internal/llm"
	"github.com/careai/careai-go/internal/logger"
	"github.com/careai/careai-go/internal/server"
	"github.com/careai/careai-go/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	st, err := openStore(cfg)
	if err != nil {
		logger.L.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	completer := llm.NewCompleter(cfg.OpenAI)
	eng := engine.New(st, completer)

	srv := server.New(eng, cfg.Security.APIKey)
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	if err := srv.Run(addr); err != nil {
		logger.L.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// openStore builds the configured persistence backend, wrapping it in a
// Redis recent-message cache when an address is configured.
func openStore(cfg *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Database.Driver {
	case "postgres":
		st, err = store.NewPostgres(cfg.Database.DSN)
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Database.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Addr == "" {
		return st, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	cached, err := store.NewCached(st, client)
	if err != nil {
		logger.L.Warn("redis unavailable; continuing without cache", "error", err)
		return st, nil
	}
	return cached, nil
}
