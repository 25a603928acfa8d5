// Command update-market runs one update cycle for a market and prints the summary,
// or with -enqueue pushes the market id onto the Redis trigger list for a running server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"

	"github.com/okian/champstock/internal/adapters/mq/redislist"
	service "github.com/okian/champstock/internal/app"
	"github.com/okian/champstock/internal/bootstrap"
	"github.com/okian/champstock/internal/config"
	"github.com/okian/champstock/internal/domain/types"
	"github.com/okian/champstock/pkg/logger"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses args and does the work, returning the process exit code so every
// deferred close runs before exit.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("update-market", flag.ContinueOnError)
	fs.SetOutput(stderr)
	marketID := fs.Int64("market", 0, "market id to update")
	enqueue := fs.Bool("enqueue", false, "push the market onto the Redis trigger list instead of running the cycle here")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *marketID <= 0 {
		fmt.Fprintln(stderr, "usage: update-market -market <id> [-enqueue]")
		return exitUsage
	}

	// Pushing a trigger never talks to the match provider, so the full
	// validation (api key, models, storage) only applies to a local cycle.
	cfg, err := config.LoadUnvalidated(ctx)
	if err == nil {
		if *enqueue {
			err = cfg.ValidateTrigger()
		} else {
			err = cfg.Validate()
		}
	}
	if err != nil {
		fmt.Fprintln(stderr, "failed to load config:", err)
		return exitError
	}
	if err := logger.InitWith(stderr, cfg.LogFormat); err != nil {
		fmt.Fprintln(stderr, "failed to initialize logging:", err)
		return exitError
	}
	_ = logger.SetLevelString(cfg.LogLevel)
	log := logger.Get().With(logger.Int64("market_id", *marketID))

	if *enqueue {
		if err := push(ctx, cfg, *marketID); err != nil {
			log.Error(ctx, "enqueue failed", logger.Error(err))
			return exitError
		}
		log.Info(ctx, "market trigger pushed", logger.String("list", cfg.TriggerRedisList))
		return exitOK
	}

	summary, err := runOnce(ctx, cfg, log, *marketID)
	if err != nil {
		log.Error(ctx, "update cycle failed", logger.Error(err))
		return exitError
	}
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Error(ctx, "encode summary", logger.Error(err))
		return exitError
	}
	fmt.Fprintln(stdout, string(out))
	return exitOK
}

func push(ctx context.Context, cfg *config.Config, marketID int64) error {
	rdb, err := bootstrap.OpenRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()
	return redislist.Push(ctx, rdb, cfg.TriggerRedisList, marketID)
}

func runOnce(ctx context.Context, cfg *config.Config, log logger.Logger, marketID int64) (types.CycleSummary, error) {
	models, err := bootstrap.LoadModels(ctx, cfg)
	if err != nil {
		return types.CycleSummary{}, err
	}
	store, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		return types.CycleSummary{}, err
	}
	defer store.Close()

	rdb, err := bootstrap.OpenRedis(ctx, cfg)
	if err != nil {
		return types.CycleSummary{}, err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	updater := bootstrap.NewUpdater(cfg, store, models, bootstrap.NewRiotClient(cfg, log), bootstrap.NewLocker(cfg, rdb), log)
	svc := service.New(store, updater, service.WithLogger(log.Named("service")))
	return svc.UpdateNow(ctx, marketID)
}
