package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/tutorcore/internal/cache"
	"github.com/cloo-solutions/tutorcore/internal/chunking"
	"github.com/cloo-solutions/tutorcore/internal/config"
	"github.com/cloo-solutions/tutorcore/internal/database"
	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/openai"
	"github.com/cloo-solutions/tutorcore/internal/repository"
	"github.com/cloo-solutions/tutorcore/internal/service"
	"github.com/cloo-solutions/tutorcore/internal/storage"
	"github.com/cloo-solutions/tutorcore/internal/telemetry"
	"github.com/cloo-solutions/tutorcore/internal/tenant"
	"github.com/cloo-solutions/tutorcore/internal/vectorindex"
	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const indexLoadPageSize = 1000

var errNoProvider = errors.New("embedding provider not configured: TUTORCORE_OPENAI_API_KEY required")

// runtime holds every component built from config. Services that need the
// embedding provider are nil when it is not configured.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool

	orgs      *repository.OrgRepository
	courses   *repository.CourseRepository
	materials *repository.MaterialRepository
	chunks    *repository.ChunkRepository
	jobs      *repository.EmbeddingJobRepository

	index *vectorindex.Index

	store     *service.EmbeddingStore
	material  *service.MaterialService
	search    *service.SearchService
	review    *service.ReviewService
	embedding *service.EmbeddingService
	retrieval *service.RetrievalService

	closers []func()
}

type runtimeOptions struct {
	// LoadIndex fills the in-memory index from the database when the
	// search backend is memory.
	LoadIndex bool
	// MemoryIndex builds the in-memory index whatever the configured backend.
	MemoryIndex bool
	// SearchMode overrides the retrieval search mode.
	SearchMode domain.SearchMode
}

func loadConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := telemetry.NewLogger(telemetry.LoggerConfig{Format: cfg.LogFormat, Debug: cfg.Debug})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts runtimeOptions) (*runtime, error) {
	pool, err := database.NewPool(ctx, cfg.DatabaseURL, database.PoolOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	rt := &runtime{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		orgs:      repository.NewOrgRepository(pool),
		courses:   repository.NewCourseRepository(pool),
		materials: repository.NewMaterialRepository(pool),
		chunks: repository.NewChunkRepository(pool, repository.ChunkSearchConfig{
			Dimensions: cfg.EmbeddingDimensions,
			Probes:     cfg.IVFProbes,
		}),
		jobs:    repository.NewEmbeddingJobRepository(pool),
		closers: []func(){pool.Close},
	}

	if err := rt.build(ctx, opts); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) build(ctx context.Context, opts runtimeOptions) error {
	cfg, logger := rt.cfg, rt.logger
	gate := tenant.NewGate(rt.courses, logger)

	rt.store = service.NewEmbeddingStore(gate, rt.materials, rt.chunks, cfg.EmbeddingDimensions, logger)

	var backend service.VectorSearcher = rt.chunks
	if cfg.SearchBackend == config.BackendMemory || opts.MemoryIndex {
		rt.index = vectorindex.New(vectorindex.Config{
			Dimensions: cfg.EmbeddingDimensions,
			Lists:      cfg.IVFLists,
			Probes:     cfg.IVFProbes,
		}, logger)
		rt.store.WithPublisher(rt.index)
		backend = rt.index
		if opts.LoadIndex {
			n, err := rt.index.Load(ctx, rt.chunks, indexLoadPageSize)
			if err != nil {
				return fmt.Errorf("failed to load similarity index: %w", err)
			}
			logger.Info("similarity index loaded", zap.Int("vectors", n))
		}
	}
	backendName := cfg.SearchBackend
	if rt.index != nil {
		backendName = config.BackendMemory
	}
	rt.search = service.NewSearchService(gate, backend, backendName, logger).WithKeywordSearch(rt.chunks)

	var objects service.ObjectStore
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		objects = s3Client
	}

	rt.material = service.NewMaterialService(service.MaterialServiceDeps{
		Gate:      gate,
		Materials: rt.materials,
		Chunks:    rt.chunks,
		Store:     rt.store,
		Objects:   objects,
		TxRunner:  repository.NewTxRunner(rt.pool),
		Params:    chunking.Params{TargetSize: cfg.ChunkTargetSize, Overlap: cfg.ChunkOverlap},
		Logger:    logger,
	})
	rt.review = service.NewReviewService(gate, repository.NewQuizRepository(rt.pool), logger)

	if !cfg.HasOpenAI() {
		logger.Warn("embedding provider not configured; embedding and retrieval disabled")
		return nil
	}

	provider := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		RateLimit:           cfg.EmbeddingRateLimit,
	})

	var queryEmbedder service.QueryEmbedder = provider
	if cfg.HasRedis() {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			// The cache is optional; queries go straight to the provider.
			logger.Warn("query cache disabled", zap.Error(err))
		} else {
			rt.closers = append(rt.closers, func() { _ = rdb.Close() })
			queryEmbedder = cache.NewQueryEmbeddingCache(rdb, provider, cfg.EmbeddingModel, cfg.EmbeddingDimensions, cfg.QueryCacheTTL, logger)
		}
	}

	rt.embedding = service.NewEmbeddingService(provider, rt.materials, rt.chunks, rt.material, rt.store, rt.jobs,
		service.EmbeddingConfig{BatchSize: cfg.EmbeddingBatchSize, Timeout: cfg.EmbeddingTimeout}, logger)
	mode := domain.SearchModeApproximate
	if opts.SearchMode != "" {
		mode = opts.SearchMode
	}
	rt.retrieval = service.NewRetrievalService(gate, queryEmbedder, rt.search, rt.chunks,
		repository.NewInteractionRepository(rt.pool),
		service.RetrievalConfig{
			Threshold: cfg.SearchThreshold,
			Mode:      mode,
			Timeout:   cfg.EmbeddingTimeout,
		}, logger)
	return nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	_ = rt.logger.Sync()
}
