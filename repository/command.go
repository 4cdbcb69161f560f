package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-offline-sync/cache"
	"github.com/goliatone/go-offline-sync/model"
)

// CommandRepository orchestrates the write path for one entity type. Every
// mutation persists to the local store first (the durability point callers
// rely on), then attempts the remote call only when the connectivity oracle
// says so, enqueuing a sync entry whenever the remote side cannot be reached.
// Remote failures are invisible to the caller: the local write already
// succeeded and sync is deferred.
type CommandRepository struct {
	store   LocalStore
	gateway RemoteGateway
	oracle  ConnectivityOracle
	cache   cache.Store
	entity  model.EntityType
	log     *slog.Logger
	now     func() time.Time

	// refresher is the optional post-invalidation analysis warmup, typically
	// QueryRepository.RefreshAnalysis. The refreshing flag suppresses nested
	// re-triggering when a refresh itself causes invalidation.
	refresher  func(context.Context)
	refreshing atomic.Bool
}

// NewCommandRepository constructs a CommandRepository for one entity type.
func NewCommandRepository(entity model.EntityType, deps Deps) (*CommandRepository, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &CommandRepository{
		store:   deps.Store,
		gateway: deps.Gateway,
		oracle:  deps.Oracle,
		cache:   deps.Cache,
		entity:  entity,
		log:     deps.Logger.With("entity", string(entity)),
		now:     deps.Now,
	}, nil
}

// SetAnalysisRefresher wires the best-effort downstream refresh that runs
// after a mutation invalidates the aggregate caches.
func (r *CommandRepository) SetAnalysisRefresher(fn func(context.Context)) {
	r.refresher = fn
}

// Add creates a record. The item is durable locally before Add returns, under
// a temporary id when the server has not assigned one yet. When online, the
// remote create runs immediately and the temporary id is reconciled with the
// server-assigned one; otherwise the mutation is queued for the next sync.
func (r *CommandRepository) Add(ctx context.Context, item model.Item) (model.Item, error) {
	ownerID, err := r.resolveOwner(ctx, item.OwnerID)
	if err != nil {
		return model.Item{}, err
	}
	item.OwnerID = ownerID

	if item.ID == "" {
		item.ID = model.NewLocalID(r.now())
		item.Provenance = model.ProvenanceOffline
	}
	if item.OccurredAt.IsZero() {
		item.OccurredAt = r.now()
	}

	if err := r.store.SaveRecord(ctx, r.entity, item); err != nil {
		return model.Item{}, fmt.Errorf("persisting record: %w", err)
	}

	if !r.oracle.Online(ctx) {
		r.enqueue(ctx, model.OpAdd, item.ID, item)
		r.invalidateAffected(ctx)
		return item, nil
	}

	created, err := r.gateway.CreateItem(ctx, r.entity, item)
	if err != nil {
		r.log.Warn("remote create failed, queued for sync", "id", item.ID, "error", err)
		r.enqueue(ctx, model.OpAdd, item.ID, item)
		r.invalidateAffected(ctx)
		return item, nil
	}

	reconciled := r.reconcileCreated(ctx, item, created)
	r.invalidateAffected(ctx)
	return reconciled, nil
}

// Update overwrites a record. An item still carrying a temporary id is never
// sent to the remote service directly: the update is queued behind the
// pending add so FIFO replay sees the reconciled id.
func (r *CommandRepository) Update(ctx context.Context, item model.Item) (model.Item, error) {
	if item.ID == "" {
		return model.Item{}, ErrMissingID
	}
	ownerID, err := r.resolveOwner(ctx, item.OwnerID)
	if err != nil {
		return model.Item{}, err
	}
	item.OwnerID = ownerID

	if err := r.store.SaveRecord(ctx, r.entity, item); err != nil {
		return model.Item{}, fmt.Errorf("persisting record: %w", err)
	}

	if item.IsLocal() || !r.oracle.Online(ctx) {
		r.enqueue(ctx, model.OpUpdate, item.ID, item)
		r.invalidateAffected(ctx)
		return item, nil
	}

	if err := r.gateway.UpdateItem(ctx, r.entity, item); err != nil {
		r.log.Warn("remote update failed, queued for sync", "id", item.ID, "error", err)
		r.enqueue(ctx, model.OpUpdate, item.ID, item)
	}
	r.invalidateAffected(ctx)
	return item, nil
}

// Delete removes a record. The local delete is the durability point; the
// remote delete runs or queues like any other mutation.
func (r *CommandRepository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}
	if _, err := r.resolveOwner(ctx, ""); err != nil {
		return err
	}

	record, found, err := r.store.GetRecord(ctx, r.entity, id)
	if err != nil {
		r.log.Warn("reading record before delete failed", "id", id, "error", err)
	}

	if err := r.store.DeleteRecord(ctx, r.entity, id); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}

	payload := model.Item{ID: id}
	if found {
		payload = record
	}

	if model.IsLocalID(id) || !r.oracle.Online(ctx) {
		r.enqueue(ctx, model.OpDelete, id, payload)
		r.invalidateAffected(ctx)
		return nil
	}

	if err := r.gateway.DeleteItem(ctx, r.entity, id); err != nil {
		r.log.Warn("remote delete failed, queued for sync", "id", id, "error", err)
		r.enqueue(ctx, model.OpDelete, id, payload)
	}
	r.invalidateAffected(ctx)
	return nil
}

// reconcileCreated replaces the temporary-id record with the server one. The
// old record is deleted, never aliased, so the store holds exactly one record
// per logical item.
func (r *CommandRepository) reconcileCreated(ctx context.Context, local, created model.Item) model.Item {
	if created.ID == "" || created.ID == local.ID {
		return local
	}

	if err := r.store.DeleteRecord(ctx, r.entity, local.ID); err != nil {
		r.log.Warn("removing temp-id record failed", "id", local.ID, "error", err)
	}
	merged := mergeServerItem(local, created)
	if err := r.store.SaveRecord(ctx, r.entity, merged); err != nil {
		r.log.Warn("persisting reconciled record failed", "id", merged.ID, "error", err)
		return local
	}
	return merged
}

func (r *CommandRepository) enqueue(ctx context.Context, op model.SyncOp, targetID string, payload model.Item) {
	entry := model.SyncEntry{
		TargetID:   targetID,
		Entity:     r.entity,
		Op:         op,
		Payload:    payload,
		EnqueuedAt: r.now(),
	}
	if err := r.store.EnqueueSync(ctx, entry); err != nil {
		// The local write is already durable; losing the queue entry costs a
		// sync, not data.
		r.log.Error("enqueueing sync entry failed", "op", string(op), "id", targetID, "error", err)
	}
}

// invalidateAffected drops every cached view the mutation touched, then runs
// the optional analysis warmup once. The refreshing flag keeps a refresh that
// itself invalidates from recursing.
func (r *CommandRepository) invalidateAffected(ctx context.Context) {
	r.cache.InvalidateGroup(InvalidationGroup(r.entity, model.MonthKey(r.now()))...)

	if r.refresher == nil {
		return
	}
	if !r.refreshing.CompareAndSwap(false, true) {
		return
	}
	defer r.refreshing.Store(false)
	r.refresher(ctx)
}

func (r *CommandRepository) resolveOwner(ctx context.Context, ownerID string) (string, error) {
	if ownerID != "" {
		return ownerID, nil
	}
	id, ok := r.gateway.CurrentUserID(ctx)
	if !ok || id == "" {
		return "", ErrNoIdentity
	}
	return id, nil
}
