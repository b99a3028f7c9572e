package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalhouse/magpie/internal/queue"
	mid "github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/internal/storage"
	"github.com/signalhouse/magpie/internal/util"
	"github.com/signalhouse/magpie/pkg/ai"
	oai "github.com/signalhouse/magpie/pkg/ai/ollama"
	gai "github.com/signalhouse/magpie/pkg/ai/openai"
	"github.com/signalhouse/magpie/pkg/dictionary"
	"github.com/signalhouse/magpie/pkg/extraction"
	"github.com/signalhouse/magpie/pkg/graphquery"
	"github.com/signalhouse/magpie/pkg/learning"
	"github.com/signalhouse/magpie/pkg/leaselock"
	"github.com/signalhouse/magpie/pkg/logger"
	"github.com/signalhouse/magpie/pkg/normalize"
	pgxstore "github.com/signalhouse/magpie/pkg/store/pgx"

	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// RunMigrations applies pending schema migrations. ErrNoChange is not
// an error; a fresh deployment and an up-to-date one both boot.
func RunMigrations() {
	migrationsPath := util.GetEnvString("MIGRATIONS_PATH", "migrations")
	m, err := migrate.New("file://"+migrationsPath, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Failed to load migrations", "err", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		logger.Fatal("Failed to apply migrations", "err", err)
	}
}

// BuildProviders constructs the completion clients extraction can route
// to, keyed by provider name.
func BuildProviders() map[string]ai.Completer {
	providers := make(map[string]ai.Completer)

	providers["openai"] = gai.NewClient(gai.NewClientParams{
		Model:   util.GetEnv("AI_CHAT_MODEL"),
		BaseURL: util.GetEnv("AI_CHAT_URL"),
		APIKey:  util.GetEnv("AI_CHAT_KEY"),
	})

	if ollamaURL := util.GetEnv("OLLAMA_URL"); ollamaURL != "" {
		client, err := oai.NewClient(oai.NewClientParams{
			Model:                 util.GetEnv("OLLAMA_MODEL"),
			BaseURL:               ollamaURL,
			APIKey:                util.GetEnv("OLLAMA_KEY"),
			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		providers["ollama"] = client
	}

	return providers
}

// DefaultExtractionConfig reads the dataset-independent extraction
// defaults from the environment.
func DefaultExtractionConfig() extraction.Config {
	provider := util.GetEnvString("AI_ADAPTER", "openai")
	model := util.GetEnv("AI_CHAT_MODEL")
	if provider == "ollama" {
		model = util.GetEnv("OLLAMA_MODEL")
	}
	return extraction.Config{
		Provider:       provider,
		Model:          model,
		HybridEnabled:  util.GetEnvBool("EXTRACTION_HYBRID", false),
		MatchThreshold: util.GetEnvNumeric("EXTRACTION_MATCH_THRESHOLD", 0),
	}
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	RunMigrations()

	conn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}

	if err := queue.SetupQueues(ch, []string{queue.ExtractQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	s3 := storage.NewS3Client(ctx)

	pgStore := pgxstore.New(conn)

	dict, err := dictionary.NewService(dictionary.NewServiceParams{
		Store: pgStore,
	})
	if err != nil {
		logger.Fatal("Failed to create dictionary service", "err", err)
	}

	normalizer, err := normalize.NewEngine(normalize.NewEngineParams{
		Graph: pgStore,
		Locks: leaselock.New(conn),
	})
	if err != nil {
		logger.Fatal("Failed to create normalization engine", "err", err)
	}

	learner, err := learning.NewEngine(learning.NewEngineParams{
		Dictionary: dict,
		Graph:      pgStore,
	})
	if err != nil {
		logger.Fatal("Failed to create learning engine", "err", err)
	}

	queryEngine, err := graphquery.NewEngine(graphquery.NewEngineParams{
		Graph: pgStore,
	})
	if err != nil {
		logger.Fatal("Failed to create query engine", "err", err)
	}

	orchestrator, err := extraction.NewOrchestrator(extraction.NewOrchestratorParams{
		Graph:      pgStore,
		Segments:   pgStore,
		Dictionary: dict,
		Normalizer: normalizer,
		Learner:    learner,
		Providers:  BuildProviders(),
		Defaults:   DefaultExtractionConfig(),
		Progress:   queue.NewTopicProgressSink(ch),
		Parallel:   int(util.GetEnvNumeric("EXTRACTION_PARALLEL", 4)),
	})
	if err != nil {
		logger.Fatal("Failed to create extraction orchestrator", "err", err)
	}

	app := &mid.App{
		DBConn:       conn,
		Queue:        ch,
		S3:           s3,
		Store:        pgStore,
		Dictionary:   dict,
		Normalizer:   normalizer,
		Learner:      learner,
		Query:        queryEngine,
		Orchestrator: orchestrator,
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64M"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
