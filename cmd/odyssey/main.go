package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-fulfillment/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/alerts"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/app"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/engine"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/db"
	"github.com/odyssey-erp/odyssey-fulfillment/jobs"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop, ok := app.Start("cli")
	defer stop()
	if !ok {
		return cli.ExitOK
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return cli.ExitFailure
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PostgresOptions("odyssey-cli"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		return cli.ExitFailure
	}
	defer pool.Close()

	// Redis is optional for the CLI: without it locks stay in-process and
	// alert events are not queued.
	var redisClient *redis.Client
	var dispatcher alerts.Dispatcher
	var jobsCLI *cli.JobsCLI
	if client, err := cache.New(ctx, cfg.RedisOptions()); err != nil {
		logger.Warn("redis unavailable", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		queue, err := jobs.NewClient(cfg.QueueRedisOpt())
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			return cli.ExitFailure
		}
		defer func() { _ = queue.Close() }()
		dispatcher = queue
		if jobsCLI, err = cli.NewJobsCLI(cfg.QueueRedisOpt()); err != nil {
			logger.Error("init jobs cli", slog.Any("error", err))
			return cli.ExitFailure
		}
		defer func() { _ = jobsCLI.Close() }()
	}

	locker := app.NewLocker(cfg, nil)
	if redisClient != nil {
		locker = app.NewLocker(cfg, redisClient)
	}
	eng, err := engine.Build(engine.PostgresStores(pool), engine.Options{
		Settings:           cfg.AlertSettings(),
		AllowNegativeStock: cfg.AllowNegativeStock,
		Locker:             locker,
		Dispatcher:         dispatcher,
		Logger:             logger,
	})
	if err != nil {
		logger.Error("init engine", slog.Any("error", err))
		return cli.ExitFailure
	}

	tag, err := language.Parse(cfg.SlipLocale)
	if err != nil {
		logger.Warn("invalid slip locale, using English", slog.String("locale", cfg.SlipLocale))
		tag = language.English
	}

	return cli.New(cli.Options{
		Stock:        eng.Ledger,
		Products:     inventory.NewRepository(pool),
		Orders:       fulfillment.NewOrderRepository(pool),
		Fulfillments: eng.Fulfillments,
		Slips:        eng.Slips,
		Picking:      eng.Picking,
		Alerts:       eng.Alerts,
		Jobs:         jobsCLI,
		Migrate: func(ctx context.Context) error {
			return db.Migrate(ctx, pool)
		},
		SlipLocale: tag,
	}).Run(ctx, os.Args[1:])
}
