package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/shubhanshu2103/collaborative-whiteboard/internal/relay"
)

const mdnsService = "_collabboard._tcp"

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	addr := envOrDefault("BOARD_HTTP_ADDR", ":8081")

	var bridge *relay.Bridge
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("redis unreachable", "addr", redisAddr, "err", err)
			os.Exit(1)
		}
		bridge = relay.NewBridge(rdb, ulid.Make().String(), log)
		log.Info("cross-instance bridge enabled", "redis", redisAddr)
	}

	var access relay.AccessChecker
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			log.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		access = relay.NewBoardStore(pool)
		log.Info("board access control enabled")
	}

	hub := relay.NewHub(log, access, bridge)
	go hub.Run(ctx)
	if bridge != nil {
		go bridge.Run(ctx, hub.DeliverRemote)
	}

	// Advertise the relay on the local network so agents can find it
	// without configuration. Registration failure is not fatal.
	if port, err := portOf(addr); err == nil {
		host, _ := os.Hostname()
		mdns, err := zeroconf.Register("board-relay-"+host, mdnsService, "local.", port, nil, nil)
		if err != nil {
			log.Warn("mdns registration failed", "err", err)
		} else {
			defer mdns.Shutdown()
			log.Info("mdns service registered", "service", mdnsService, "port", port)
		}
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: relay.NewRouter(hub, log),
	}
	go func() {
		log.Info("relay listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", "err", err)
	}
}

func portOf(addr string) (int, error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return 0, errors.New("no port in address")
	}
	return strconv.Atoi(addr[i+1:])
}
