package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/veilarc/ragfence/internal/logger"
	"github.com/veilarc/ragfence/pkg/audit"
	"github.com/veilarc/ragfence/pkg/auth"
	"github.com/veilarc/ragfence/pkg/chunker"
	"github.com/veilarc/ragfence/pkg/config"
	"github.com/veilarc/ragfence/pkg/extract"
	"github.com/veilarc/ragfence/pkg/ingest"
	"github.com/veilarc/ragfence/pkg/llm"
	"github.com/veilarc/ragfence/pkg/query"
	"github.com/veilarc/ragfence/pkg/registry"
	"github.com/veilarc/ragfence/pkg/sensitivity"
	"github.com/veilarc/ragfence/pkg/store"
	"github.com/veilarc/ragfence/server"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	var configPath string
	var seedDemo bool
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.BoolVar(&seedDemo, "seed-demo", false, "Seed the demo user accounts")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	zl, err := logger.New(cfg.Server.Prod)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, seedDemo, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, seedDemo bool, zl *zap.Logger) error {
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	reg := registry.NewPGRegistry(pool)
	if err := reg.Init(ctx); err != nil {
		return err
	}
	if seedDemo {
		if err := reg.SeedDemoUsers(ctx); err != nil {
			return err
		}
		zl.Info("demo users seeded")
	}

	recorder := audit.NewPGRecorder(pool)
	if err := recorder.Init(ctx); err != nil {
		return err
	}
	emitter := audit.NewEmitter(recorder, zl)

	vs, err := store.NewPGVectorStore(ctx, store.PGVectorConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
	})
	if err != nil {
		return err
	}
	defer vs.Close()
	if err := vs.Init(ctx, cfg.Database.VectorDim); err != nil {
		return err
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   cfg.LLM.EmbedModel,
		BaseURL: cfg.LLM.BaseURL,
	})
	if err != nil {
		return err
	}
	answers, err := llm.NewAnswerEngine(llm.AnswerConfig{
		Model:       cfg.LLM.AnswerModel,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		BaseURL:     cfg.LLM.BaseURL,
	})
	if err != nil {
		return err
	}

	ch, err := chunker.NewWithConfig(chunker.Config{
		ChunkSize: cfg.Ingest.ChunkSize,
		Overlap:   cfg.Ingest.ChunkOverlap,
	})
	if err != nil {
		return err
	}

	pipeline := ingest.NewPipeline(
		ingest.PipelineConfig{MaxChunksPerDoc: cfg.Ingest.MaxChunksPerDoc},
		reg,
		ch,
		sensitivity.New(cfg.Ingest.SensitivePatterns),
		embedder,
		vs,
		zl,
	)
	queries := query.NewService(query.ServiceConfig{TopK: cfg.Query.TopK},
		embedder, vs, answers, emitter, zl)
	authSvc := auth.NewService(reg, auth.Config{
		Secret:   cfg.Auth.Secret,
		TokenTTL: time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute,
	})
	extractor := extract.NewURLExtractor(extract.URLExtractorConfig{
		RateLimit: cfg.Extract.RateLimit,
		Timeout:   time.Duration(cfg.Extract.TimeoutSecs) * time.Second,
	})

	srv := server.New(server.Config{
		Port:        cfg.Server.Port,
		MaxUploadMB: cfg.Server.MaxUploadMB,
	}, authSvc, pipeline, queries, extractor, recorder, zl)

	errCh := make(chan error, 1)
	go func() {
		zl.Info("server listening", zap.Int("port", cfg.Server.Port))
		errCh <- srv.Listen()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		zl.Info("shutting down", zap.String("signal", sig.String()))
		if err := srv.Shutdown(); err != nil {
			return err
		}
		emitter.Wait()
		return nil
	}
}
