package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veilarc/ragfence/internal/models"
)

// PGRecorder persists audit events in Postgres. Rows are append-only and
// listed newest first.
type PGRecorder struct {
	pool *pgxpool.Pool
}

func NewPGRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

func (r *PGRecorder) Init(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit (
			audit_id BIGSERIAL PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			question TEXT NOT NULL,
			retrieved JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return nil
}

func (r *PGRecorder) Record(ctx context.Context, event models.AuditEvent) error {
	retrieved := event.Retrieved
	if retrieved == nil {
		retrieved = []models.RetrievedRef{}
	}
	data, err := json.Marshal(retrieved)
	if err != nil {
		return fmt.Errorf("failed to encode retrieved refs: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit (tenant_id, user_id, question, retrieved, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		event.TenantID, event.UserID, event.Question, data, createdAt)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

func (r *PGRecorder) List(ctx context.Context, tenantID string, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT audit_id, tenant_id, user_id, question, retrieved, created_at
		FROM audit
		WHERE tenant_id = $1
		ORDER BY audit_id DESC
		LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var event models.AuditEvent
		var data []byte
		if err := rows.Scan(&event.AuditID, &event.TenantID, &event.UserID,
			&event.Question, &data, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		if err := json.Unmarshal(data, &event.Retrieved); err != nil {
			return nil, fmt.Errorf("failed to decode retrieved refs: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
