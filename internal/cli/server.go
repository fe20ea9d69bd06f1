package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edutest-quiz-service/internal/app"
	"edutest-quiz-service/internal/config"
	"edutest-quiz-service/internal/domain"
	"edutest-quiz-service/internal/infra/bank"
	"edutest-quiz-service/internal/infra/memory"
	pgstore "edutest-quiz-service/internal/infra/postgres"
	redisinfra "edutest-quiz-service/internal/infra/redis"
	"edutest-quiz-service/internal/logger"
	tgdelivery "edutest-quiz-service/internal/transport/telegram"
	"edutest-quiz-service/internal/transport/ws"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the service.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// resultStore is the full persistence surface shared by the engine and the
// delivery layers; both the Postgres and the in-memory store satisfy it.
type resultStore interface {
	app.ResultRepository
	tgdelivery.UserRepository
}

// cachedScores decorates a result store with a Redis-backed leaderboard cache.
type cachedScores struct {
	resultStore
	cache *redisinfra.LeaderboardCache
}

func (c cachedScores) TopScores(ctx context.Context, topic string, limit int) ([]domain.LeaderboardEntry, error) {
	return c.cache.TopScores(ctx, topic, limit)
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(os.Getenv("APP_ENV"))
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	bankDir := cfg.Bank.Dir
	if bankDir == "" {
		bankDir = "bank"
	}
	bankTTL := config.TTLDuration(cfg.Bank.TTL, 5*time.Minute)
	questionBank := bank.NewCache(bank.NewFSLoader(bankDir), bankTTL)

	var results resultStore
	if pool != nil {
		results = pgstore.NewResultStore(pool)
	} else {
		log.Warn("postgres not configured, using in-memory result store")
		results = memory.NewResultStore()
	}
	if redisClient != nil {
		results = cachedScores{
			resultStore: results,
			cache:       redisinfra.NewLeaderboardCache(redisClient, results, redisTTL),
		}
	}

	var sessions app.SessionStore
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(redisClient, redisTTL)
	} else {
		sessions = memory.NewSessionStore()
	}

	engine := app.NewQuizEngine(questionBank, sessions, results)
	wsHandler := ws.NewHandler(engine, results, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	token := cfg.Telegram.Token
	if token == "" {
		token = os.Getenv("TELEGRAM_TOKEN")
	}
	if token != "" {
		bot, err := tgbotapi.NewBotAPI(token)
		if err != nil {
			return err
		}
		admins := config.ParseAdminIDs(cfg.Telegram.AdminIDs)
		for id := range config.ParseAdminIDs(os.Getenv("ADMIN_IDS")) {
			admins[id] = true
		}
		handler := tgdelivery.NewHandler(bot, log, engine, results, admins, cfg.Quiz.DefaultQuestions)
		go func() {
			if err := handler.Run(runCtx); err != nil && err != context.Canceled {
				log.Error("telegram handler stopped", zap.Error(err))
			}
		}()
	} else {
		log.Info("telegram token not set, bot delivery disabled")
	}

	go func() {
		log.Info("starting quiz service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
