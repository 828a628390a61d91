package types

import (
	"context"

	"github.com/veilarc/ragfence/internal/models"
	"github.com/veilarc/ragfence/pkg/security"
)

// Core interfaces. Collaborators (embedding, vector search, registry,
// audit persistence, answer generation) are injected handles, never
// process-wide singletons.

type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorStore interface {
	// Init is idempotent: creating an already-existing collection is a
	// no-op, so concurrent first-time ingestions do not fail each other.
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, points []models.Point) error
	Search(ctx context.Context, vector []float32, filter security.Filter, limit int) ([]models.SearchHit, error)
	Close()
}

type DocumentRegistry interface {
	CreateDocument(ctx context.Context, doc models.Document) (string, error)
}

type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, event models.AuditEvent) error
	List(ctx context.Context, tenantID string, limit int) ([]models.AuditEvent, error)
}

type AnswerEngine interface {
	Answer(ctx context.Context, question, contextPack string) (string, error)
}
