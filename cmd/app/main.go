// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ObraztsovOleg/consultant-bot/internal/application"
	"github.com/ObraztsovOleg/consultant-bot/internal/config"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/adapter"
	aiAdapters "github.com/ObraztsovOleg/consultant-bot/internal/infra/adapters/ai"
	tele "github.com/ObraztsovOleg/consultant-bot/internal/infra/adapters/telegram"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/cache"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/db/migrate"
	pg "github.com/ObraztsovOleg/consultant-bot/internal/infra/db/postgres"
	httpapi "github.com/ObraztsovOleg/consultant-bot/internal/infra/http"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/i18n"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/logging"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/metrics"
	red "github.com/ObraztsovOleg/consultant-bot/internal/infra/redis"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/sched"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/scheduler"
	"github.com/ObraztsovOleg/consultant-bot/internal/usecase"
)

// set via -ldflags
var (
	version = "dev"
	commit  = "none"
)

// noopToken runs the bot without Telegram in dev mode.
const noopToken = "noop"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("exited")
	}
	logger.Info().Msg("shutdown complete")
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Str("commit", commit).Bool("dev", cfg.Runtime.Dev).Msg("starting")

	// ---- Postgres ----
	if cfg.Database.MigrateOnBoot {
		if err := migrateUp(cfg.Database.URL, logger); err != nil {
			return err
		}
	}
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	stateRepo := pg.NewUserStateRepo(pool, cfg.Database.QueryTimeout)
	bookingRepo := pg.NewBookingRepo(pool, cfg.Database.QueryTimeout)
	catalogRepo := pg.NewCatalogRepo(pool, cfg.Database.QueryTimeout)
	txm := pg.NewTxManager(pool)

	// ---- Redis (optional) ----
	var (
		redisClient *red.Client
		limiter     tele.RateLimiter
		sweepOpts   []sched.SweeperOption
	)
	if cfg.Redis.URL != "" {
		redisClient, err = red.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
		if cfg.Redis.RateLimit > 0 {
			limiter = red.NewRateLimiter(redisClient, cfg.Redis.RateLimit, cfg.Redis.RateWindow)
		}
		sweepOpts = append(sweepOpts, sched.WithLock(red.NewLocker(redisClient)))
	} else {
		logger.Warn().Msg("redis not configured; rate limiting and sweep lease disabled")
	}

	// ---- LLM ----
	llm := newLLM(ctx, cfg.LLM, logger)
	tokens, err := aiAdapters.NewTokenCounter("")
	if err != nil {
		logger.Warn().Err(err).Msg("tiktoken unavailable; using approximate token counts")
	}

	// ---- Telegram outbound ----
	var (
		notifier adapter.Notifier
		tgBot    *tele.RealTelegramBotAdapter
	)
	if cfg.Runtime.Dev && cfg.Bot.Token == noopToken {
		notifier = tele.NewNoopBotAdapter(logger)
	} else {
		tgBot, err = tele.NewRealTelegramBotAdapter(cfg.Bot, cfg.Payment.ProviderToken, logger)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		notifier = tgBot
	}

	// ---- Text ----
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Language)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}
	if miss := tr.Untranslated(); len(miss) > 0 {
		logger.Debug().Str("lang", tr.Lang()).Strs("keys", miss).Msg("untranslated keys fall back to English")
	}

	// ---- Use cases ----
	stateCache := cache.NewTTLCache[int64, *model.UserState](cfg.State.CacheTTL)
	base := model.NewCatalog(personasFromConfig(cfg.Catalog), cfg.Catalog.DefaultPersona)

	stateUC := usecase.NewStateUseCase(stateRepo, stateCache, base.DefaultID(), usecase.StateLimits{
		HistoryMaxBytes: cfg.State.HistoryMaxBytes,
		PrefsMaxBytes:   cfg.State.PrefsMaxBytes,
		SessionMaxBytes: cfg.State.SessionMaxBytes,
	}, logger)
	bookingUC := usecase.NewBookingUseCase(bookingRepo, txm, cfg.Booking.HoldTTL, logger)
	catalogUC := usecase.NewCatalogUseCase(base, catalogRepo, cfg.State.CacheTTL, cfg.Booking.UpcomingStarts, logger)
	chatUC := usecase.NewChatUseCase(stateUC, bookingUC, catalogUC, llm, tokens, cfg.LLM.MaxContextTokens, logger)
	paymentUC := usecase.NewPaymentUseCase(bookingUC, stateUC, catalogUC, notifier, tr, usecase.PaymentOptions{
		Currency:   cfg.Payment.Currency,
		MinorUnits: cfg.Payment.MinorUnits,
	}, logger)
	sessionUC := usecase.NewSessionUseCase(stateUC, bookingUC, catalogUC, notifier, tr, logger)

	// ---- Facade ----
	facade := application.NewBotFacade(application.Deps{
		States:   stateUC,
		Catalog:  catalogUC,
		Bookings: bookingUC,
		Sessions: sessionUC,
		Chat:     chatUC,
		Payments: paymentUC,
		Notifier: notifier,
	}, application.Options{Currency: cfg.Payment.Currency, MinorUnits: cfg.Payment.MinorUnits}, logger)

	// ---- Background workers ----
	g, gctx := errgroup.WithContext(ctx)

	sweeper := sched.NewSessionSweeper(cfg.Scheduler.SweepInterval, cfg.Scheduler.TickTimeout, sessionUC, logger, sweepOpts...)
	g.Go(func() error { return sweeper.Run(gctx) })

	janitor := sched.NewCacheJanitor(cfg.Scheduler.CacheEvictInterval, stateUC, logger)
	g.Go(func() error { return janitor.Run(gctx) })

	poolStats := scheduler.NewScheduler("db_pool_stats", 15*time.Second, 5*time.Second, func(ctx context.Context) error {
		pg.ReportPoolStats(pool)
		return nil
	}, logger, scheduler.Immediately())
	g.Go(func() error { return poolStats.Run(gctx) })

	// ---- HTTP ----
	checks := map[string]httpapi.Pinger{"postgres": httpapi.PingFunc(pool.Ping)}
	if redisClient != nil {
		checks["redis"] = redisClient
	}
	var auth *httpapi.WebhookAuth
	if cfg.Payment.WebhookSecret != "" {
		auth = httpapi.NewWebhookAuth(cfg.Payment.WebhookSecret)
	}
	srv := httpapi.NewServer(cfg.HTTP.Addr, checks, paymentUC, auth, logger)
	g.Go(func() error { return srv.Run(gctx) })

	// ---- Telegram inbound ----
	if tgBot != nil {
		bot, err := tele.NewBot(tgBot.API(), notifier, facade, tr, tele.BotOptions{
			Limiter:     limiter,
			Workers:     cfg.Runtime.UpdateWorkers,
			AdminIDs:    cfg.Bot.AdminIDs,
			PollTimeout: cfg.Bot.PollTimeout,
			HoldMinutes: int(cfg.Booking.HoldTTL / time.Minute),
			Currency:    cfg.Payment.Currency,
		}, logger)
		if err != nil {
			return fmt.Errorf("telegram bot: %w", err)
		}
		g.Go(func() error { return bot.StartPolling(gctx) })
	} else {
		logger.Warn().Msg("telegram disabled; running workers and http only")
	}

	return g.Wait()
}

func migrateUp(dsn string, logger *zerolog.Logger) error {
	db, err := migrate.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migrate.Run(db, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// newLLM routes persona models to the configured providers. Without any key
// it falls back to a canned responder.
func newLLM(ctx context.Context, cfg config.LLMConfig, logger *zerolog.Logger) adapter.LLMClient {
	byProvider := map[string]adapter.LLMClient{}
	if cfg.OpenAIKey != "" {
		c, err := aiAdapters.NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, "", cfg.MaxOutputTokens)
		if err != nil {
			logger.Error().Err(err).Msg("openai adapter")
		} else {
			byProvider["openai"] = c
		}
	}
	if cfg.GeminiKey != "" {
		c, err := aiAdapters.NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, "", cfg.MaxOutputTokens)
		if err != nil {
			logger.Error().Err(err).Msg("gemini adapter")
		} else {
			byProvider["gemini"] = c
		}
	}

	var llm adapter.LLMClient
	if len(byProvider) == 0 {
		logger.Warn().Msg("no LLM provider configured; replies are canned")
		llm = aiAdapters.NewNoopAIAdapter(logger)
	} else {
		llm = aiAdapters.NewRouter(cfg.DefaultProvider, byProvider, cfg.ModelProviders, aiAdapters.RouterOptions{Failover: cfg.Failover})
	}
	return aiAdapters.NewLimitedAI(aiAdapters.NewTimeoutAI(llm, cfg.Timeout), cfg.ConcurrentLimit)
}

func personasFromConfig(c config.CatalogConfig) []model.Persona {
	if len(c.Personas) == 0 {
		return model.DefaultPersonas()
	}
	out := make([]model.Persona, 0, len(c.Personas))
	for _, p := range c.Personas {
		out = append(out, model.Persona{
			ID:             p.ID,
			Name:           p.Name,
			Model:          p.Model,
			Prompt:         p.Prompt,
			Description:    p.Description,
			Specialty:      p.Specialty,
			Greeting:       p.Greeting,
			PricePerMinute: p.PricePerMinute,
		})
	}
	return out
}
