package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/isksamiul2/chatty-backend/internal/config"
	"github.com/isksamiul2/chatty-backend/internal/server"
	"github.com/isksamiul2/chatty-backend/internal/user"
	"github.com/isksamiul2/chatty-backend/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to load .env file: %v", err)
	}

	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var opts []server.Option
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}
		log.Printf("Connected to Redis at %s", cfg.RedisAddr)
		opts = append(opts, server.WithRedis(rdb))
	}
	if cfg.AuthSecret != "" {
		opts = append(opts, server.WithAuthSecret(cfg.AuthSecret))
	}
	if len(cfg.Users) > 0 {
		users := make([]user.User, len(cfg.Users))
		for i, u := range cfg.Users {
			users[i] = user.User{ID: u.ID, Name: u.Name}
		}
		opts = append(opts, server.WithUsers(users))
	}
	if cfg.SendRateLimit > 0 && cfg.SendRateWindow > 0 {
		opts = append(opts, server.WithSendRateLimit(cfg.SendRateLimit, cfg.SendRateWindow.Std()))
	}

	var connOpts []ws.ConnManagerOption
	if cfg.MaxConns > 0 {
		connOpts = append(connOpts, ws.WithMaxConns(cfg.MaxConns))
	}
	if cfg.IdleTimeout > 0 {
		connOpts = append(connOpts, ws.WithIdleTimeout(cfg.IdleTimeout.Std()))
	}
	if len(connOpts) > 0 {
		opts = append(opts, server.WithConnOptions(connOpts...))
	}

	srv := server.New(cfg.ListenAddr, opts...)
	log.Printf("Starting chatty sync server on %s", cfg.ListenAddr)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
