package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/veilarc/ragfence/internal/models"
	"github.com/veilarc/ragfence/pkg/audit"
	"github.com/veilarc/ragfence/pkg/chunker"
	"github.com/veilarc/ragfence/pkg/config"
	"github.com/veilarc/ragfence/pkg/ingest"
	"github.com/veilarc/ragfence/pkg/llm"
	"github.com/veilarc/ragfence/pkg/query"
	"github.com/veilarc/ragfence/pkg/registry"
	"github.com/veilarc/ragfence/pkg/sensitivity"
	"github.com/veilarc/ragfence/pkg/store"
	"go.uber.org/zap"
)

// Local mode: ingest text files into an in-process index and ask questions
// against it under a chosen identity. Nothing touches Postgres; embeddings
// and answers still go through Ollama.

type cliOptions struct {
	configPath string
	tenant     string
	role       string
	userID     int64
	groups     string
	sensitive  bool
	files      []string
}

func main() {
	_ = godotenv.Load()

	var opts cliOptions
	flag.StringVar(&opts.configPath, "config", "", "Path to config file")
	flag.StringVar(&opts.tenant, "tenant", "t1", "Tenant to act as")
	flag.StringVar(&opts.role, "role", "member", "Role to act as (admin or member)")
	flag.Int64Var(&opts.userID, "user-id", 1, "User id to act as")
	flag.StringVar(&opts.groups, "groups", "", "Comma-separated group memberships")
	flag.BoolVar(&opts.sensitive, "sensitive", false, "Mark ingested files as sensitive")
	flag.Parse()
	opts.files = flag.Args()

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

func run(opts cliOptions) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %v", err)
	}

	identity := models.Identity{
		UserID:   opts.userID,
		TenantID: opts.tenant,
		Role:     models.Role(opts.role),
		Groups:   splitGroups(opts.groups),
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

	// The memory index takes its dimension from the embedding model itself.
	probe, err := embedder.CreateEmbedding(ctx, []string{"dimension probe"})
	if err != nil {
		return fmt.Errorf("embedding backend unreachable: %v", err)
	}
	vs := store.NewMemoryStore()
	if err := vs.Init(ctx, len(probe[0])); err != nil {
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
		registry.NewMemoryRegistry(),
		ch,
		sensitivity.New(cfg.Ingest.SensitivePatterns),
		embedder,
		vs,
		zap.NewNop(),
	)
	emitter := audit.NewEmitter(audit.NewMemoryRecorder(), zap.NewNop())
	queries := query.NewService(query.ServiceConfig{TopK: cfg.Query.TopK},
		embedder, vs, answers, emitter, zap.NewNop())

	if len(opts.files) > 0 {
		bar := getProgressBar(len(opts.files), "Indexing files...")
		start := time.Now()
		total := 0
		for i, path := range opts.files {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %v", path, err)
			}
			res, err := pipeline.Ingest(ctx, identity, ingest.Request{
				Title:         filepath.Base(path),
				SourceType:    "file",
				SourceValue:   path,
				RawText:       string(data),
				SensitiveFlag: opts.sensitive,
			})
			if err != nil {
				return fmt.Errorf("failed to ingest %s: %v", path, err)
			}
			total += res.ChunksIndexed
			bar.Add(1)
			rate := float64(i+1) / time.Since(start).Seconds()
			bar.Describe(color.BlueString("Indexing files... (%.1f files/sec)", rate))
		}
		color.Green("\nIndexed %d chunks from %d files\n", total, len(opts.files))
	}

	color.Cyan("\nAsking as %s/%s (user %d). Type 'exit' to quit.",
		identity.TenantID, identity.Role, identity.UserID)

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		resp, err := queries.Answer(ctx, identity, question)
		if err != nil {
			color.Red("Error: %v", err)
			continue
		}

		assistantPrompt("Assistant: %s\n", resp.Answer)
		for _, c := range resp.Citations {
			fmt.Printf("  [%s chunk %d] %s\n", c.Title, c.ChunkID, c.Snippet)
		}
	}

	emitter.Wait()
	return scanner.Err()
}

func splitGroups(raw string) []string {
	var out []string
	for _, g := range strings.Split(raw, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionShowCount(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}
