package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"pairlink/internal/core/domain"
	"pairlink/internal/infrastructure/distributed"
	"pairlink/pkg/logger"
)

// eventtap follows the mirrored event channel of one identity and prints each
// envelope as a JSON line, for dashboards and debugging against a broker
// running with the redis mirror enabled.
func main() {
	var (
		redisAddr     = flag.String("redis", "localhost:6379", "redis address")
		redisPassword = flag.String("password", "", "redis password")
		redisDB       = flag.Int("db", 0, "redis database")
		identity      = flag.String("identity", "", "identity whose event channel to follow")
		logLevel      = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	if *identity == "" {
		fmt.Fprintln(os.Stderr, "usage: eventtap -identity <identity> [-redis <addr>]")
		os.Exit(2)
	}

	zapLogger := logger.New(*logLevel)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	client, err := distributed.NewRedisClient(*redisAddr, *redisPassword, *redisDB, 2, log)
	if err != nil {
		log.Fatalw("failed to connect to redis", "error", err)
	}
	defer client.Close()

	bus := distributed.NewEventBus(client, "eventtap", log)

	ctx, cancel := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err = bus.Subscribe(ctx, domain.Identity(*identity), func(envelope *distributed.Envelope) error {
		line, err := json.Marshal(envelope)
		if err != nil {
			return err
		}
		fmt.Println(string(line))
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.Fatalw("subscription failed", "error", err)
	}
}
