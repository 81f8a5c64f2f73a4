package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"legalrag/internal/ai"
	appsvc "legalrag/internal/app"
	"legalrag/internal/cache"
	"legalrag/internal/config"
	"legalrag/internal/pkg/chunker"
	"legalrag/internal/pkg/pdfextract"
	"legalrag/internal/pkg/pii"
	"legalrag/internal/platform/logger"
	mysqlClient "legalrag/internal/platform/mysql"
	"legalrag/internal/platform/qdrant"
	rabbitmqClient "legalrag/internal/platform/rabbitmq"
	redisClient "legalrag/internal/platform/redis"
	"legalrag/internal/repository"
	"legalrag/internal/vectorstore"
	"legalrag/internal/worker"
)

// HealthCheck is a named readiness probe for one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type App struct {
	Config *config.Config
	Log    *logger.Logger
	RAG    *appsvc.RAGService

	Qdrant           *qdrant.Client
	Redis            *redis.Client
	MySQL            *gorm.DB
	MQConn           *amqp.Connection
	Transcripts      *rabbitmqClient.TranscriptPublisher
	TranscriptWorker *worker.TranscriptWorker

	HealthChecks []HealthCheck
	StartedAt    time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		Log:       log,
		StartedAt: time.Now(),
	}
	if err := app.init(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	qdrantCli, err := qdrant.NewClient(a.Log, qdrant.Config{
		URL:        cfg.Qdrant.URL,
		APIKey:     cfg.Qdrant.APIKey,
		Collection: cfg.Qdrant.Collection,
		Timeout:    time.Duration(cfg.Qdrant.TimeoutSeconds) * time.Second,
	}, nil)
	if err != nil {
		return err
	}
	a.Qdrant = qdrantCli
	a.addCheck("qdrant", qdrantCli.Ready)

	gateway := vectorstore.NewGateway(qdrantCli, cfg.Qdrant.VectorDim)
	if cfg.Qdrant.RecreateOnStart {
		if err := gateway.ResetCollection(ctx); err != nil {
			return fmt.Errorf("reset qdrant collection failed: %w", err)
		}
		a.Log.Info("qdrant collection recreated",
			"collection", cfg.Qdrant.Collection,
			"vector_dim", cfg.Qdrant.VectorDim,
		)
	}

	sessions, err := a.newSessionStore(ctx)
	if err != nil {
		return err
	}

	detector, err := pii.NewRegexDetector(cfg.PII.Entities...)
	if err != nil {
		return fmt.Errorf("build pii detector failed: %w", err)
	}
	chunk, err := chunker.New(cfg.Chunker.MaxUnit, cfg.Chunker.Unit, cfg.Chunker.MethodLabel)
	if err != nil {
		return fmt.Errorf("build chunker failed: %w", err)
	}

	llm := ai.NewOpenAICompatibleClient(ai.Config{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey,
		ChatModel:         cfg.LLM.Model,
		EmbeddingModel:    cfg.LLM.EmbeddingModel,
		Timeout:           time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		MaxRetries:        cfg.LLM.MaxRetries,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Burst:             cfg.LLM.Burst,
	})

	deps := appsvc.RAGDeps{
		Log:       a.Log,
		Sessions:  sessions,
		Extract:   pdfextract.ExtractPages,
		Detector:  detector,
		Chunker:   chunk,
		Embedder:  appsvc.NewEmbedder(llm, cfg.LLM.EmbedConcurrency),
		Gateway:   gateway,
		Generator: appsvc.NewAnswerGenerator(llm, cfg.LLM.MaxTokens, cfg.LLM.Temperature),
		ChatMode:  cfg.Chat.Mode,
	}

	if cfg.Persistence.Enabled {
		if err := a.initPersistence(ctx, &deps); err != nil {
			return err
		}
	}

	a.RAG = appsvc.NewRAGService(deps)
	a.Log.Info("application initialized",
		"session_backend", cfg.Session.Backend,
		"chat_mode", cfg.Chat.Mode,
		"persistence", cfg.Persistence.Enabled,
	)
	return nil
}

func (a *App) newSessionStore(ctx context.Context) (appsvc.SessionStore, error) {
	cfg := a.Config
	ttl := time.Duration(cfg.Session.TTLSeconds) * time.Second

	if cfg.Session.Backend != "redis" {
		store := cache.NewMemorySessionStore(ttl)
		a.addCheck("session_store", store.Ping)
		return store, nil
	}

	redisCli, err := redisClient.New(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	a.Redis = redisCli
	store := cache.NewRedisSessionStore(redisCli, ttl)
	a.addCheck("redis", store.Ping)
	return store, nil
}

// initPersistence connects MySQL and RabbitMQ, starts the transcript worker and wires
// the document recorder and transcript publisher into deps.
func (a *App) initPersistence(ctx context.Context, deps *appsvc.RAGDeps) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlClient.Migrate(mysqlDB); err != nil {
		return err
	}
	a.addCheck("mysql", func(ctx context.Context) error {
		return mysqlClient.Ping(ctx, mysqlDB)
	})

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return err
	}
	a.MQConn = mqConn
	a.addCheck("rabbitmq", func(context.Context) error {
		if mqConn.IsClosed() {
			return errors.New("connection closed")
		}
		return nil
	})

	messageRepo := repository.NewMessageRepository(mysqlDB)
	a.TranscriptWorker = worker.NewTranscriptWorker(a.Log, mqConn, messageRepo, cfg.RabbitMQ.TranscriptQueue)
	if err := a.TranscriptWorker.Start(ctx); err != nil {
		return fmt.Errorf("start transcript worker failed: %w", err)
	}

	a.Transcripts = rabbitmqClient.NewTranscriptPublisher(mqConn, cfg.RabbitMQ.TranscriptQueue)
	deps.Documents = repository.NewDocumentRepository(mysqlDB)
	deps.Transcripts = a.Transcripts
	return nil
}

func (a *App) addCheck(name string, check func(ctx context.Context) error) {
	a.HealthChecks = append(a.HealthChecks, HealthCheck{Name: name, Check: check})
}

func (a *App) Close() error {
	var closeErr error
	if a.TranscriptWorker != nil {
		a.TranscriptWorker.Close()
	}
	if a.Transcripts != nil {
		if err := a.Transcripts.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		if err := mysqlClient.Close(a.MySQL); err != nil {
			closeErr = err
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
	return closeErr
}
