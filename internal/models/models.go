package models

import "time"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

type ACLMode string

const (
	ACLPublic     ACLMode = "public"
	ACLRestricted ACLMode = "restricted"
)

// Identity is the already-authenticated requester. It is produced by the
// auth layer and never changes for the lifetime of a request.
type Identity struct {
	UserID   int64
	TenantID string
	Role     Role
	Groups   []string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Document is the registry record created once at ingestion time.
// Re-ingestion creates a new document, never an update.
type Document struct {
	DocID         string
	TenantID      string
	Title         string
	CreatedBy     int64
	RolesAllowed  []string
	ACLMode       ACLMode
	AllowedUsers  []int64
	AllowedGroups []string
	SourceType    string
	SourceValue   string
	CreatedAt     time.Time
}

// Payload is the metadata stored alongside each chunk vector. Field names
// are a durable contract with the index: renaming one breaks every
// previously indexed document.
type Payload struct {
	TenantID      string    `json:"tenant_id"`
	DocID         string    `json:"doc_id"`
	Title         string    `json:"title"`
	ChunkID       int       `json:"chunk_id"`
	RolesAllowed  []string  `json:"roles_allowed"`
	ACLMode       ACLMode   `json:"acl_mode"`
	AllowedUsers  []int64   `json:"allowed_users"`
	AllowedGroups []string  `json:"allowed_groups"`
	Sensitive     bool      `json:"sensitive"`
	Text          string    `json:"text"`
	CreatedAt     time.Time `json:"created_at"`
}

// Point is one indexed chunk: a globally unique ID, its embedding, and the
// payload the security filter evaluates.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

type SearchHit struct {
	Point Point
	Score float32
}

type Citation struct {
	DocID   string `json:"doc_id"`
	Title   string `json:"title"`
	ChunkID int    `json:"chunk_id"`
	Snippet string `json:"snippet"`
}

// RetrievedRef identifies one retrieved chunk in an audit record.
type RetrievedRef struct {
	DocID   string `json:"doc_id"`
	ChunkID int    `json:"chunk_id"`
}

// AuditEvent is append-only, one per answered query.
type AuditEvent struct {
	AuditID   int64          `json:"audit_id"`
	TenantID  string         `json:"tenant_id"`
	UserID    int64          `json:"user_id"`
	Question  string         `json:"question"`
	Retrieved []RetrievedRef `json:"retrieved"`
	CreatedAt time.Time      `json:"created_at"`
}

type User struct {
	UserID   int64
	Username string
	Password string
	TenantID string
	Role     Role
	Groups   []string
}
