package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veilarc/ragfence/internal/models"
	"github.com/veilarc/ragfence/internal/types"
	"go.uber.org/zap"
)

// Emitter records audit events off the answer path. A persistence failure
// never reaches the query caller; it is logged and counted for operators.
type Emitter struct {
	recorder types.AuditRecorder
	log      *zap.Logger
	timeout  time.Duration
	failures atomic.Int64
	wg       sync.WaitGroup
}

func NewEmitter(recorder types.AuditRecorder, log *zap.Logger) *Emitter {
	return &Emitter{
		recorder: recorder,
		log:      log,
		timeout:  5 * time.Second,
	}
}

// Emit records the event in the background and returns immediately.
func (e *Emitter) Emit(event models.AuditEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := e.recorder.Record(ctx, event); err != nil {
			e.failures.Add(1)
			e.log.Error("audit record failed",
				zap.Error(err),
				zap.String("tenant_id", event.TenantID),
				zap.Int64("user_id", event.UserID))
		}
	}()
}

// Failures reports how many audit writes have been dropped since start.
func (e *Emitter) Failures() int64 {
	return e.failures.Load()
}

// Wait blocks until all in-flight audit writes finish. Used on shutdown
// and in tests.
func (e *Emitter) Wait() {
	e.wg.Wait()
}
