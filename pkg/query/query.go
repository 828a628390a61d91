package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/veilarc/ragfence/internal/models"
	"github.com/veilarc/ragfence/internal/types"
	"github.com/veilarc/ragfence/pkg/audit"
	"github.com/veilarc/ragfence/pkg/security"
	"go.uber.org/zap"
)

const snippetLength = 220

type Response struct {
	Answer    string            `json:"answer"`
	Citations []models.Citation `json:"citations"`
}

type ServiceConfig struct {
	TopK int
}

// Service answers questions with retrieval scoped by the requester's
// compiled security filter. The answer model only ever sees chunks the
// filter admitted.
type Service struct {
	config   ServiceConfig
	embedder types.Embedder
	store    types.VectorStore
	answers  types.AnswerEngine
	audit    *audit.Emitter
	log      *zap.Logger
}

func NewService(
	config ServiceConfig,
	embedder types.Embedder,
	store types.VectorStore,
	answers types.AnswerEngine,
	emitter *audit.Emitter,
	log *zap.Logger,
) *Service {
	if config.TopK == 0 {
		config.TopK = 6
	}
	return &Service{
		config:   config,
		embedder: embedder,
		store:    store,
		answers:  answers,
		audit:    emitter,
		log:      log,
	}
}

// Answer embeds the question, searches under the identity's predicate, and
// generates an answer from the authorized context. Backend failures return
// an error; no partial or stale results are ever served.
func (s *Service) Answer(ctx context.Context, identity models.Identity, question string) (Response, error) {
	vectors, err := s.embedder.CreateEmbedding(ctx, []string{question})
	if err != nil {
		return Response{}, fmt.Errorf("failed to embed question: %w", err)
	}
	if len(vectors) != 1 {
		return Response{}, fmt.Errorf("embedder returned %d vectors for one question", len(vectors))
	}

	filter := security.Compile(identity)
	hits, err := s.store.Search(ctx, vectors[0], filter, s.config.TopK)
	if err != nil {
		return Response{}, fmt.Errorf("search failed: %w", err)
	}

	citations := make([]models.Citation, 0, len(hits))
	contextLines := make([]string, 0, len(hits))
	retrieved := make([]models.RetrievedRef, 0, len(hits))
	for _, hit := range hits {
		pl := hit.Point.Payload
		citations = append(citations, models.Citation{
			DocID:   pl.DocID,
			Title:   pl.Title,
			ChunkID: pl.ChunkID,
			Snippet: snippet(pl.Text),
		})
		contextLines = append(contextLines,
			fmt.Sprintf("[doc:%s chunk:%d] %s", pl.DocID, pl.ChunkID, pl.Text))
		retrieved = append(retrieved, models.RetrievedRef{DocID: pl.DocID, ChunkID: pl.ChunkID})
	}

	contextPack := "NO_CONTEXT"
	if len(contextLines) > 0 {
		contextPack = strings.Join(contextLines, "\n---\n")
	}

	answer, err := s.answers.Answer(ctx, question, contextPack)
	if err != nil {
		return Response{}, fmt.Errorf("failed to generate answer: %w", err)
	}

	s.audit.Emit(models.AuditEvent{
		TenantID:  identity.TenantID,
		UserID:    identity.UserID,
		Question:  question,
		Retrieved: retrieved,
	})

	if len(citations) == 0 {
		citations = append(citations, sentinelCitation())
	}

	s.log.Info("question answered",
		zap.String("tenant_id", identity.TenantID),
		zap.Int64("user_id", identity.UserID),
		zap.Int("chunks_retrieved", len(retrieved)))

	return Response{Answer: answer, Citations: citations}, nil
}

// sentinelCitation signals "no authorized context" instead of an empty
// citation list, so clients can distinguish it from a truncated response.
func sentinelCitation() models.Citation {
	return models.Citation{
		DocID:   "none",
		Title:   "none",
		ChunkID: 0,
		Snippet: "No authorized context found.",
	}
}

// snippet truncates at snippetLength characters, never splitting a
// multibyte rune.
func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength]) + "..."
}
