package audit

import (
	"context"
	"sync"
	"time"

	"github.com/veilarc/ragfence/internal/models"
)

// MemoryRecorder keeps audit events in process, for tests and the CLI.
type MemoryRecorder struct {
	mu     sync.RWMutex
	nextID int64
	events []models.AuditEvent
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(_ context.Context, event models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	event.AuditID = r.nextID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	r.events = append(r.events, event)
	return nil
}

func (r *MemoryRecorder) List(_ context.Context, tenantID string, limit int) ([]models.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var events []models.AuditEvent
	for i := len(r.events) - 1; i >= 0 && len(events) < limit; i-- {
		if r.events[i].TenantID == tenantID {
			events = append(events, r.events[i])
		}
	}
	return events, nil
}
