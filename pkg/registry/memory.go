package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/veilarc/ragfence/internal/models"
)

// MemoryRegistry is the in-process registry used by tests and the local CLI.
type MemoryRegistry struct {
	mu    sync.RWMutex
	docs  map[string]models.Document
	users map[string]models.User
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		docs:  make(map[string]models.Document),
		users: make(map[string]models.User),
	}
}

func (r *MemoryRegistry) CreateDocument(_ context.Context, doc models.Document) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc.DocID = uuid.NewString()
	doc.CreatedAt = time.Now().UTC()
	r.docs[doc.DocID] = doc
	return doc.DocID, nil
}

func (r *MemoryRegistry) GetDocument(docID string) (models.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[docID]
	return doc, ok
}

func (r *MemoryRegistry) AddUser(user models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.UserID == 0 {
		user.UserID = int64(len(r.users) + 1)
	}
	r.users[user.Username] = user
}

func (r *MemoryRegistry) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[username]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return user, nil
}
