package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veilarc/ragfence/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// PGRegistry keeps document metadata and user records in Postgres. Document
// rows are write-once: re-ingestion creates a new row with a new doc_id.
type PGRegistry struct {
	pool *pgxpool.Pool
}

func NewPGRegistry(pool *pgxpool.Pool) *PGRegistry {
	return &PGRegistry{pool: pool}
}

func (r *PGRegistry) Init(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id BIGSERIAL PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			role TEXT NOT NULL,
			groups TEXT[] NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			doc_id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			title TEXT NOT NULL,
			created_by BIGINT NOT NULL,
			roles_allowed TEXT[] NOT NULL,
			acl_mode TEXT NOT NULL,
			allowed_users BIGINT[] NOT NULL,
			allowed_groups TEXT[] NOT NULL,
			source_type TEXT NOT NULL,
			source_value TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range ddl {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize registry schema: %w", err)
		}
	}
	return nil
}

// CreateDocument mints an opaque doc_id and records the document. The ID
// has no arithmetic relationship to anything: point IDs are derived from
// it by hashing, never by concatenation.
func (r *PGRegistry) CreateDocument(ctx context.Context, doc models.Document) (string, error) {
	docID := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (doc_id, tenant_id, title, created_by, roles_allowed,
			acl_mode, allowed_users, allowed_groups, source_type, source_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		docID,
		doc.TenantID,
		doc.Title,
		doc.CreatedBy,
		doc.RolesAllowed,
		string(doc.ACLMode),
		doc.AllowedUsers,
		doc.AllowedGroups,
		doc.SourceType,
		doc.SourceValue,
		time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}
	return docID, nil
}

func (r *PGRegistry) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	var role string
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, username, password, tenant_id, role, groups FROM users WHERE username = $1`,
		username).Scan(&user.UserID, &user.Username, &user.Password, &user.TenantID, &role, &user.Groups)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	user.Role = models.Role(role)
	return user, nil
}

// SeedDemoUsers inserts the demo accounts for local runs. Existing
// usernames are left alone.
func (r *PGRegistry) SeedDemoUsers(ctx context.Context) error {
	demo := []models.User{
		{Username: "t1_admin", Password: "pass", TenantID: "t1", Role: models.RoleAdmin},
		{Username: "t1_member", Password: "pass", TenantID: "t1", Role: models.RoleMember},
		{Username: "t2_admin", Password: "pass", TenantID: "t2", Role: models.RoleAdmin},
		{Username: "t2_member", Password: "pass", TenantID: "t2", Role: models.RoleMember},
	}
	for _, u := range demo {
		groups := u.Groups
		if groups == nil {
			groups = []string{}
		}
		_, err := r.pool.Exec(ctx, `
			INSERT INTO users (username, password, tenant_id, role, groups)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (username) DO NOTHING`,
			u.Username, u.Password, u.TenantID, string(u.Role), groups)
		if err != nil {
			return fmt.Errorf("failed to seed user %s: %w", u.Username, err)
		}
	}
	return nil
}
