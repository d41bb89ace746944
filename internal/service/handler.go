package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avandenbergh/erplink/internal/erp"
	"github.com/avandenbergh/erplink/internal/models"
)

// ErrUnknownModule means a queue item names a module no handler is
// registered for. A configuration problem; retrying cannot fix it.
var ErrUnknownModule = errors.New("no handler registered for module")

// Handler owns the business logic for one module's entity family. The
// engine is opaque to field semantics: handlers translate payloads into
// remote calls and apply remote payloads to local state. A handler holds
// whatever collaborators it needs (field-translation strategies, local
// storage, the ERP client for fetches) by composition.
type Handler interface {
	// BuildRemoteCall translates a local_to_remote job into the ERP call to
	// execute. Payload validation happens here; rejections should be
	// returned as *erp.ValidationError so the engine fails the job without
	// burning its retry budget.
	BuildRemoteCall(ctx context.Context, job *models.QueueItem, mapping *models.EntityMapping) (*erp.Call, error)
	// ApplyRemote applies the remote counterpart's state locally for a
	// remote_to_local job and returns the local id. When the job carries no
	// remote payload (a push flipped by conflict resolution) the handler
	// fetches current remote state itself.
	ApplyRemote(ctx context.Context, job *models.QueueItem, mapping *models.EntityMapping) (string, error)
	// RemoteModel names the ERP collection for an entity type, recorded on
	// the mapping.
	RemoteModel(entityType string) string
}

// ConflictDetector is an optional handler capability: reporting the
// last-modified time of both sides so the engine can detect divergence.
// Handlers without it never conflict-resolve; the job's direction stands.
type ConflictDetector interface {
	LastModified(ctx context.Context, job *models.QueueItem, mapping *models.EntityMapping) (local, remote time.Time, err error)
}

// Registry maps module identifiers to their handlers. Resolution is a
// direct lookup; producers and the engine share one registry instance built
// at process start.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(module string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[module] = h
}

func (r *Registry) Resolve(module string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[module]
	return h, ok
}

// Modules returns the registered module identifiers.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
