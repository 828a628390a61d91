package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/veilarc/ragfence/internal/models"
	"github.com/veilarc/ragfence/pkg/security"
)

// ErrDimensionMismatch means a vector's length disagrees with the index's
// fixed dimensionality. The index dimension is set once at creation; a
// mismatched write would silently corrupt similarity search, so it fails
// loudly before anything is written.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

type PGVectorConfig struct {
	ConnString string
	TableName  string
}

// PGVectorStore keeps chunk vectors and their payloads in Postgres with
// pgvector. The payload lives in typed columns so the security filter can
// run inside the similarity query.
type PGVectorStore struct {
	config    PGVectorConfig
	pool      *pgxpool.Pool
	dimension int
}

func NewPGVectorStore(ctx context.Context, config PGVectorConfig) (*PGVectorStore, error) {
	if config.TableName == "" {
		config.TableName = "chunks"
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &PGVectorStore{config: config, pool: pool}, nil
}

// Init creates the extension, table, and indexes if absent. It is safe to
// call concurrently from multiple first-time ingestions: everything is
// IF NOT EXISTS. If the table already exists with a different embedding
// dimension, Init fails rather than corrupt the index.
func (vs *PGVectorStore) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}

	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			point_id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			title TEXT NOT NULL,
			chunk_id INTEGER NOT NULL,
			roles_allowed TEXT[] NOT NULL,
			acl_mode TEXT NOT NULL,
			allowed_users BIGINT[] NOT NULL,
			allowed_groups TEXT[] NOT NULL,
			sensitive BOOLEAN NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			embedding vector(%d)
		)`, vs.config.TableName, dimension)
	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// atttypmod of a vector column is its dimension. Detects a pre-existing
	// table created for a different embedding model.
	var existing int
	err := vs.pool.QueryRow(ctx,
		`SELECT atttypmod FROM pg_attribute WHERE attrelid = $1::regclass AND attname = 'embedding'`,
		vs.config.TableName).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to read index dimension: %w", err)
	}
	if existing != dimension {
		return fmt.Errorf("%w: index has %d, configured %d", ErrDimensionMismatch, existing, dimension)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)
	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create embedding index: %w", err)
	}

	tenantIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_tenant_idx ON %s (tenant_id)`,
		vs.config.TableName, vs.config.TableName)
	if _, err := vs.pool.Exec(ctx, tenantIndex); err != nil {
		return fmt.Errorf("failed to create tenant index: %w", err)
	}

	vs.dimension = dimension
	return nil
}

// Upsert writes a document's full chunk batch in one transaction, so no
// query observes a partially indexed document. Every vector is checked
// against the index dimension before the first write.
func (vs *PGVectorStore) Upsert(ctx context.Context, points []models.Point) error {
	for _, p := range points {
		if len(p.Vector) != vs.dimension {
			return fmt.Errorf("%w: point %s has %d, index has %d",
				ErrDimensionMismatch, p.ID, len(p.Vector), vs.dimension)
		}
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (point_id, tenant_id, doc_id, title, chunk_id, roles_allowed,
			acl_mode, allowed_users, allowed_groups, sensitive, content, created_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (point_id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			sensitive = EXCLUDED.sensitive`,
		vs.config.TableName)

	for _, p := range points {
		pl := p.Payload
		_, err = tx.Exec(ctx, stmt,
			p.ID,
			pl.TenantID,
			pl.DocID,
			pl.Title,
			pl.ChunkID,
			pl.RolesAllowed,
			string(pl.ACLMode),
			pl.AllowedUsers,
			pl.AllowedGroups,
			pl.Sensitive,
			pl.Text,
			pl.CreatedAt,
			pgvector.NewVector(p.Vector),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Search runs cosine similarity ranking with the compiled security filter
// evaluated in the WHERE clause, so unauthorized chunks never leave the
// database.
func (vs *PGVectorStore) Search(ctx context.Context, vector []float32, filter security.Filter, limit int) ([]models.SearchHit, error) {
	if limit <= 0 {
		limit = 6
	}

	where, args := renderFilter(filter, 2)
	query := fmt.Sprintf(`
		SELECT point_id, tenant_id, doc_id, title, chunk_id, roles_allowed,
			acl_mode, allowed_users, allowed_groups, sensitive, content, created_at,
			1 - (embedding <=> $1) AS score
		FROM %s
		WHERE %s
		ORDER BY embedding <=> $1
		LIMIT %d`,
		vs.config.TableName, where, limit)

	queryArgs := append([]any{pgvector.NewVector(vector)}, args...)
	rows, err := vs.pool.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var hits []models.SearchHit
	for rows.Next() {
		var hit models.SearchHit
		var aclMode string
		err := rows.Scan(
			&hit.Point.ID,
			&hit.Point.Payload.TenantID,
			&hit.Point.Payload.DocID,
			&hit.Point.Payload.Title,
			&hit.Point.Payload.ChunkID,
			&hit.Point.Payload.RolesAllowed,
			&aclMode,
			&hit.Point.Payload.AllowedUsers,
			&hit.Point.Payload.AllowedGroups,
			&hit.Point.Payload.Sensitive,
			&hit.Point.Payload.Text,
			&hit.Point.Payload.CreatedAt,
			&hit.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		hit.Point.Payload.ACLMode = models.ACLMode(aclMode)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func (vs *PGVectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// renderFilter translates the compiled security filter into a WHERE clause
// with placeholders starting at $next. The SQL mirrors Filter.Matches
// exactly; the memory store test suite pins the shared semantics.
func renderFilter(f security.Filter, next int) (string, []any) {
	groups := f.Groups
	if groups == nil {
		groups = []string{}
	}

	clause := fmt.Sprintf(
		`tenant_id = $%d
		AND $%d = ANY(roles_allowed)
		AND (
			(cardinality(allowed_users) = 0 AND cardinality(allowed_groups) = 0)
			OR $%d = ANY(allowed_users)
			OR allowed_groups && $%d
		)`,
		next, next+1, next+2, next+3)
	args := []any{f.TenantID, string(f.Role), f.UserID, groups}

	if f.ExcludeSensitive {
		clause += "\n\t\tAND NOT sensitive"
	}
	return clause, args
}
