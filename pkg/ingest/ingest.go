package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veilarc/ragfence/internal/models"
	"github.com/veilarc/ragfence/internal/types"
	"github.com/veilarc/ragfence/pkg/chunker"
	"github.com/veilarc/ragfence/pkg/pointid"
	"github.com/veilarc/ragfence/pkg/security"
	"github.com/veilarc/ragfence/pkg/sensitivity"
	"go.uber.org/zap"
)

// ErrEmptyContent means the source text cleaned down to nothing. The
// registry row created before chunking is left orphaned; reconciling it is
// out of scope here.
var ErrEmptyContent = errors.New("document has no content")

type Request struct {
	Title         string
	RolesAllowed  []string
	SourceType    string
	SourceValue   string
	RawText       string
	SensitiveFlag bool
	MaxChunks     int
	AllowedUsers  []int64
	AllowedGroups []string
}

type Result struct {
	DocID         string
	ChunksIndexed int
}

type PipelineConfig struct {
	MaxChunksPerDoc int
}

// Pipeline turns raw text into access-tagged, embedded chunks in the
// vector index. All collaborators are injected; the pipeline owns only the
// orchestration order.
type Pipeline struct {
	config     PipelineConfig
	registry   types.DocumentRegistry
	chunker    chunker.Chunker
	classifier sensitivity.Classifier
	embedder   types.Embedder
	store      types.VectorStore
	log        *zap.Logger
}

func NewPipeline(
	config PipelineConfig,
	registry types.DocumentRegistry,
	ch chunker.Chunker,
	classifier sensitivity.Classifier,
	embedder types.Embedder,
	store types.VectorStore,
	log *zap.Logger,
) *Pipeline {
	if config.MaxChunksPerDoc == 0 {
		config.MaxChunksPerDoc = 400
	}
	return &Pipeline{
		config:     config,
		registry:   registry,
		chunker:    ch,
		classifier: classifier,
		embedder:   embedder,
		store:      store,
		log:        log,
	}
}

// Ingest registers the document, chunks and embeds its text, and upserts
// the full chunk batch. Nothing is written to the index unless every chunk
// embedded successfully, so a failed ingestion never partially commits.
func (p *Pipeline) Ingest(ctx context.Context, identity models.Identity, req Request) (Result, error) {
	roles := req.RolesAllowed
	if len(roles) == 0 {
		roles = []string{string(models.RoleMember)}
	}
	maxChunks := req.MaxChunks
	if maxChunks <= 0 {
		maxChunks = p.config.MaxChunksPerDoc
	}

	aclMode := security.ResolveACLMode(req.AllowedUsers, req.AllowedGroups)

	docID, err := p.registry.CreateDocument(ctx, models.Document{
		TenantID:      identity.TenantID,
		Title:         req.Title,
		CreatedBy:     identity.UserID,
		RolesAllowed:  roles,
		ACLMode:       aclMode,
		AllowedUsers:  req.AllowedUsers,
		AllowedGroups: req.AllowedGroups,
		SourceType:    req.SourceType,
		SourceValue:   req.SourceValue,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to register document: %w", err)
	}

	text := chunker.Clean(req.RawText)
	chunks := p.chunker.SplitCapped(text, maxChunks)
	if len(chunks) == 0 {
		return Result{}, fmt.Errorf("%w: doc %s", ErrEmptyContent, docID)
	}

	// One embedding call per document, never one per chunk.
	vectors, err := p.embedder.CreateEmbedding(ctx, chunks)
	if err != nil {
		return Result{}, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return Result{}, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	createdAt := time.Now().UTC()
	points := make([]models.Point, len(chunks))
	for i, chunk := range chunks {
		points[i] = models.Point{
			ID:     pointid.Allocate(docID, i),
			Vector: vectors[i],
			Payload: models.Payload{
				TenantID:      identity.TenantID,
				DocID:         docID,
				Title:         req.Title,
				ChunkID:       i,
				RolesAllowed:  roles,
				ACLMode:       aclMode,
				AllowedUsers:  req.AllowedUsers,
				AllowedGroups: req.AllowedGroups,
				Sensitive:     p.classifier.Sensitive(chunk, req.SensitiveFlag),
				Text:          chunk,
				CreatedAt:     createdAt,
			},
		}
	}

	if err := p.store.Upsert(ctx, points); err != nil {
		return Result{}, fmt.Errorf("failed to index chunks: %w", err)
	}

	p.log.Info("document ingested",
		zap.String("tenant_id", identity.TenantID),
		zap.String("doc_id", docID),
		zap.String("source_type", req.SourceType),
		zap.Int("chunks", len(points)),
		zap.String("acl_mode", string(aclMode)))

	return Result{DocID: docID, ChunksIndexed: len(points)}, nil
}
