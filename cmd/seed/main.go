// Command seed loads a YAML roster fixture into the configured store.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/okian/champstock/internal/bootstrap"
	"github.com/okian/champstock/internal/config"
	"github.com/okian/champstock/internal/seed"
	"github.com/okian/champstock/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

// run returns the exit code so the store is closed before the process exits.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("file", "fixtures/markets.yaml", "roster fixture to load")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "failed to load config:", err)
		return 1
	}
	if err := logger.InitWith(stderr, cfg.LogFormat); err != nil {
		fmt.Fprintln(stderr, "failed to initialize logging:", err)
		return 1
	}
	_ = logger.SetLevelString(cfg.LogLevel)
	log := logger.Get()

	fixture, err := seed.LoadFile(*path)
	if err != nil {
		log.Error(ctx, "load fixture", logger.String("file", *path), logger.Error(err))
		return 1
	}

	store, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.Error(ctx, "open store", logger.Error(err))
		return 1
	}
	defer store.Close()

	res, err := seed.Apply(ctx, store, fixture, log.Named("seed"))
	if err != nil {
		log.Error(ctx, "seed failed", logger.Error(err))
		return 1
	}
	log.Info(ctx, "seed complete",
		logger.Int("markets", len(res.MarketIDs)),
		logger.Int("slots", len(res.Slots)),
		logger.String("driver", cfg.StorageDriver))
	return 0
}
