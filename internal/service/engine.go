package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/avandenbergh/erplink/internal/erp"
	"github.com/avandenbergh/erplink/internal/models"
)

const (
	DefaultBatchSize      = 10
	DefaultMaxItemsPerRun = 100
)

// QueueStore is the queue contract the engine drives.
type QueueStore interface {
	ClaimBatch(ctx context.Context, tenant string, limit int) ([]models.QueueItem, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) (bool, error)
	MarkFailedPermanent(ctx context.Context, id string, errMsg string) error
}

// MappingStore is the entity-identity contract the engine resolves and
// records identities through.
type MappingStore interface {
	LookupRemote(ctx context.Context, tenant, module, entityType, localID string) (*models.EntityMapping, error)
	LookupLocal(ctx context.Context, tenant, module, entityType, remoteID string) (*models.EntityMapping, error)
	Upsert(ctx context.Context, m *models.EntityMapping) error
	Delete(ctx context.Context, tenant, module, entityType, localOrRemoteID string) error
}

// FailureNotifier observes terminal failures. Implementations must not
// block; the engine calls this inline.
type FailureNotifier interface {
	NotifyTerminal(job *models.QueueItem, errMsg string)
}

// Engine drains the sync queue: it claims batches, resolves identities,
// delegates translation to module handlers, executes remote calls, and
// writes results back into both repositories. Every per-item failure is
// caught and classified; ProcessQueue itself only fails when the queue
// cannot be read.
type Engine struct {
	queue    QueueStore
	mappings MappingStore
	client   erp.Client
	registry *Registry
	notifier FailureNotifier

	tenant         string
	policy         ConflictPolicy
	batchSize      int
	maxItemsPerRun int
}

// EngineOptions bounds one ProcessQueue invocation.
type EngineOptions struct {
	Tenant         string
	Policy         ConflictPolicy
	BatchSize      int
	MaxItemsPerRun int
}

func NewEngine(queue QueueStore, mappings MappingStore, client erp.Client, registry *Registry, notifier FailureNotifier, opts EngineOptions) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxItemsPerRun <= 0 {
		opts.MaxItemsPerRun = DefaultMaxItemsPerRun
	}
	if opts.Policy == "" {
		opts.Policy = PolicyNewestWins
	}
	return &Engine{
		queue:          queue,
		mappings:       mappings,
		client:         client,
		registry:       registry,
		notifier:       notifier,
		tenant:         opts.Tenant,
		policy:         opts.Policy,
		batchSize:      opts.BatchSize,
		maxItemsPerRun: opts.MaxItemsPerRun,
	}
}

// ProcessQueue drains successive claim batches until the queue is empty or
// the run budget is spent. Items claimed but unprocessed when the context
// expires stay in processing until the stale-recovery sweep reclaims them.
func (e *Engine) ProcessQueue(ctx context.Context) error {
	processed := 0

	for processed < e.maxItemsPerRun {
		if ctx.Err() != nil {
			log.Printf("Run budget exceeded after %d item(s), stopping", processed)
			return nil
		}

		limit := e.batchSize
		if remaining := e.maxItemsPerRun - processed; remaining < limit {
			limit = remaining
		}

		batch, err := e.queue.ClaimBatch(ctx, e.tenant, limit)
		if err != nil {
			return fmt.Errorf("failed to claim batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			if ctx.Err() != nil {
				log.Printf("Run budget exceeded mid-batch after %d item(s), stopping", processed)
				return nil
			}
			e.processItem(ctx, &batch[i])
			processed++
		}
	}

	if processed > 0 {
		log.Printf("Processed %d queue item(s)", processed)
	}
	return nil
}

// processItem runs one claimed item through the sync pipeline and turns the
// outcome into a queue state transition. Never lets an error escape.
func (e *Engine) processItem(ctx context.Context, job *models.QueueItem) {
	log.Printf("Processing item %s [%s] (module: %s, entity: %s, action: %s, direction: %s, attempt %d)",
		job.ID, job.CorrelationID, job.Module, job.EntityType, job.Action, job.Direction, job.Attempts+1)

	err := e.syncItem(ctx, job)
	if err == nil {
		if markErr := e.queue.MarkCompleted(ctx, job.ID); markErr != nil {
			log.Printf("Failed to mark item %s completed: %v", job.ID, markErr)
		}
		return
	}

	log.Printf("Item %s [%s] failed: %v", job.ID, job.CorrelationID, err)

	// Fatal classifications are terminal on first occurrence; everything
	// else goes through the backoff schedule.
	if errors.Is(err, ErrUnknownModule) || erp.IsValidation(err) {
		if markErr := e.queue.MarkFailedPermanent(ctx, job.ID, err.Error()); markErr != nil {
			log.Printf("Failed to mark item %s permanently failed: %v", job.ID, markErr)
			return
		}
		e.notifier.NotifyTerminal(job, err.Error())
		return
	}

	terminal, markErr := e.queue.MarkFailed(ctx, job.ID, err.Error())
	if markErr != nil {
		log.Printf("Failed to mark item %s failed: %v", job.ID, markErr)
		return
	}
	if terminal {
		e.notifier.NotifyTerminal(job, err.Error())
	}
}

// syncItem performs the actual synchronization for one item.
func (e *Engine) syncItem(ctx context.Context, job *models.QueueItem) error {
	handler, ok := e.registry.Resolve(job.Module)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModule, job.Module)
	}

	mapping, err := e.resolveMapping(ctx, job)
	if err != nil {
		return err
	}

	// Content-equality short-circuit: an unchanged payload means the last
	// successful sync already covers this state; skip the round trip.
	if mapping != nil && job.Action != models.ActionDelete &&
		mapping.SyncHash != "" && mapping.SyncHash == models.PayloadHash(job.Payload) {
		log.Printf("Item %s [%s] payload unchanged since last sync, skipping remote call",
			job.ID, job.CorrelationID)
		return nil
	}

	direction := e.resolveConflict(ctx, job, mapping, handler)

	if direction == models.DirectionLocalToRemote {
		return e.push(ctx, job, mapping, handler)
	}
	return e.pull(ctx, job, mapping, handler)
}

// resolveMapping looks up the existing identity mapping for the item's
// entity, if any.
func (e *Engine) resolveMapping(ctx context.Context, job *models.QueueItem) (*models.EntityMapping, error) {
	if job.LocalID != nil {
		return e.mappings.LookupRemote(ctx, job.TenantID, job.Module, job.EntityType, *job.LocalID)
	}
	if job.RemoteID != nil {
		return e.mappings.LookupLocal(ctx, job.TenantID, job.Module, job.EntityType, *job.RemoteID)
	}
	return nil, nil
}

// resolveConflict detects diverging unsynced changes on both sides and
// applies the configured policy, returning the effective direction.
func (e *Engine) resolveConflict(ctx context.Context, job *models.QueueItem, mapping *models.EntityMapping, handler Handler) models.SyncDirection {
	if mapping == nil || mapping.LastSyncedAt == nil {
		return job.Direction
	}
	detector, ok := handler.(ConflictDetector)
	if !ok {
		return job.Direction
	}

	localTS, remoteTS, err := detector.LastModified(ctx, job, mapping)
	if err != nil {
		log.Printf("Item %s [%s]: conflict probe failed, keeping declared direction: %v",
			job.ID, job.CorrelationID, err)
		return job.Direction
	}

	lastSynced := *mapping.LastSyncedAt
	if !localTS.After(lastSynced) || !remoteTS.After(lastSynced) {
		// Only one side moved; no divergence.
		return job.Direction
	}

	resolved := resolveDirection(e.policy, job.Direction, localTS, remoteTS)
	if resolved != job.Direction {
		log.Printf("Item %s [%s]: both sides changed, policy %s flips direction to %s",
			job.ID, job.CorrelationID, e.policy, resolved)
	}
	return resolved
}

// push executes a local_to_remote sync through the transport.
func (e *Engine) push(ctx context.Context, job *models.QueueItem, mapping *models.EntityMapping, handler Handler) error {
	call, err := handler.BuildRemoteCall(ctx, job, mapping)
	if err != nil {
		return fmt.Errorf("handler translation failed: %w", err)
	}

	result, err := e.client.ExecuteKw(ctx, call.Model, call.Method, call.Args, call.Kwargs)
	if err != nil {
		return err
	}

	if job.Action == models.ActionDelete {
		return e.dropMapping(ctx, job, mapping)
	}

	remoteID := e.remoteIDFor(job, mapping, result)
	if remoteID == "" {
		return fmt.Errorf("cannot determine remote id for item %s (result %v)", job.ID, result)
	}
	localID := ""
	if job.LocalID != nil {
		localID = *job.LocalID
	} else if mapping != nil {
		localID = mapping.LocalID
	}

	now := time.Now()
	return e.mappings.Upsert(ctx, &models.EntityMapping{
		TenantID:     job.TenantID,
		Module:       job.Module,
		EntityType:   job.EntityType,
		LocalID:      localID,
		RemoteID:     remoteID,
		RemoteModel:  handler.RemoteModel(job.EntityType),
		SyncHash:     models.PayloadHash(job.Payload),
		LastSyncedAt: &now,
	})
}

// pull applies already-fetched remote data locally via the handler.
func (e *Engine) pull(ctx context.Context, job *models.QueueItem, mapping *models.EntityMapping, handler Handler) error {
	localID, err := handler.ApplyRemote(ctx, job, mapping)
	if err != nil {
		return fmt.Errorf("handler apply failed: %w", err)
	}

	if job.Action == models.ActionDelete {
		return e.dropMapping(ctx, job, mapping)
	}

	remoteID := e.remoteIDFor(job, mapping, nil)
	if remoteID == "" || localID == "" {
		log.Printf("Item %s [%s]: incomplete identity after pull (local %q, remote %q), mapping not written",
			job.ID, job.CorrelationID, localID, remoteID)
		return nil
	}

	now := time.Now()
	return e.mappings.Upsert(ctx, &models.EntityMapping{
		TenantID:     job.TenantID,
		Module:       job.Module,
		EntityType:   job.EntityType,
		LocalID:      localID,
		RemoteID:     remoteID,
		RemoteModel:  handler.RemoteModel(job.EntityType),
		SyncHash:     models.PayloadHash(job.Payload),
		LastSyncedAt: &now,
	})
}

// dropMapping removes the identity mapping after a delete has been synced
// in either direction.
func (e *Engine) dropMapping(ctx context.Context, job *models.QueueItem, mapping *models.EntityMapping) error {
	ref := ""
	switch {
	case job.LocalID != nil:
		ref = *job.LocalID
	case job.RemoteID != nil:
		ref = *job.RemoteID
	case mapping != nil:
		ref = mapping.LocalID
	}
	if ref == "" {
		return nil
	}
	return e.mappings.Delete(ctx, job.TenantID, job.Module, job.EntityType, ref)
}

// remoteIDFor picks the remote identifier: the known mapping or job value
// first, falling back to a create call's result.
func (e *Engine) remoteIDFor(job *models.QueueItem, mapping *models.EntityMapping, result interface{}) string {
	if mapping != nil && mapping.RemoteID != "" {
		return mapping.RemoteID
	}
	if job.RemoteID != nil && *job.RemoteID != "" {
		return *job.RemoteID
	}
	switch v := result.(type) {
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case string:
		return v
	}
	return ""
}
