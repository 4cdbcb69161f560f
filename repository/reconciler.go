package repository

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goliatone/go-offline-sync/cache"
	"github.com/goliatone/go-offline-sync/model"
)

// Reconciler drains the sync queue against the remote gateway when
// connectivity returns. Entries replay strictly in FIFO order so an update
// queued after an add for the same temporary id sees the reconciled
// server id. Failed replays stay queued for the next drain; successful ones
// are removed and can never replay again.
type Reconciler struct {
	store   LocalStore
	gateway RemoteGateway
	oracle  ConnectivityOracle
	cache   cache.Store
	log     *slog.Logger
	now     func() time.Time

	// refresher runs once per drain with successes, not once per item.
	refresher func(context.Context)

	// One drain at a time; a second caller waits rather than interleaving.
	mu sync.Mutex
}

// NewReconciler constructs a Reconciler over the shared collaborators.
func NewReconciler(deps Deps) (*Reconciler, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &Reconciler{
		store:   deps.Store,
		gateway: deps.Gateway,
		oracle:  deps.Oracle,
		cache:   deps.Cache,
		log:     deps.Logger,
		now:     deps.Now,
	}, nil
}

// SetAnalysisRefresher wires the single post-drain aggregate warmup.
func (r *Reconciler) SetAnalysisRefresher(fn func(context.Context)) {
	r.refresher = fn
}

// DrainStats summarizes one reconciliation pass.
type DrainStats struct {
	Replayed  int
	Succeeded int
	Failed    int
}

// Drain replays every pending sync entry in FIFO order. For adds, the
// temporary id is stripped so the server assigns a canonical one, and the
// local temp-id record is replaced by the server record. After the pass, if
// anything succeeded, every affected entity's cache group is invalidated and
// the aggregate refresh runs once.
func (r *Reconciler) Drain(ctx context.Context) (DrainStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats DrainStats
	entries, err := r.store.PendingSync(ctx)
	if err != nil {
		return stats, err
	}

	// Temp id -> server id mappings established by adds earlier in this pass.
	idMap := make(map[string]string)
	touched := make(map[model.EntityType]bool)

	for _, entry := range entries {
		if entry.Succeeded {
			continue
		}
		stats.Replayed++

		target := entry.TargetID
		if mapped, ok := idMap[target]; ok {
			target = mapped
		}

		err := r.replay(ctx, entry, target, idMap)
		if err != nil {
			stats.Failed++
			r.log.Warn("sync replay failed", "op", string(entry.Op), "id", entry.TargetID, "error", err)
			if merr := r.store.MarkSyncOutcome(ctx, entry.QueueID, false); merr != nil {
				r.log.Error("marking sync failure failed", "queue_id", entry.QueueID, "error", merr)
			}
			continue
		}

		stats.Succeeded++
		touched[entry.Entity] = true
		if merr := r.store.MarkSyncOutcome(ctx, entry.QueueID, true); merr != nil {
			r.log.Error("marking sync success failed", "queue_id", entry.QueueID, "error", merr)
		}
	}

	if stats.Succeeded > 0 {
		month := model.MonthKey(r.now())
		for entity := range touched {
			r.cache.InvalidateGroup(InvalidationGroup(entity, month)...)
		}
		if r.refresher != nil {
			r.refresher(ctx)
		}
	}
	return stats, nil
}

func (r *Reconciler) replay(ctx context.Context, entry model.SyncEntry, target string, idMap map[string]string) error {
	switch entry.Op {
	case model.OpAdd:
		payload := entry.Payload
		payload.ID = "" // the server assigns the canonical id
		created, err := r.gateway.CreateItem(ctx, entry.Entity, payload)
		if err != nil {
			return err
		}

		// A later queued delete may already have removed the temp-id record.
		// Reinserting it under the server id would resurrect a record the
		// user no longer has, so the merged record is only persisted when the
		// local one still exists. An unreadable store keeps the record.
		_, exists, gerr := r.store.GetRecord(ctx, entry.Entity, entry.TargetID)
		if gerr != nil {
			r.log.Warn("reading temp-id record failed", "id", entry.TargetID, "error", gerr)
			exists = true
		}
		if exists {
			if err := r.store.DeleteRecord(ctx, entry.Entity, entry.TargetID); err != nil {
				r.log.Warn("removing temp-id record failed", "id", entry.TargetID, "error", err)
			}
			merged := mergeServerItem(entry.Payload, created)
			if err := r.store.SaveRecord(ctx, entry.Entity, merged); err != nil {
				r.log.Warn("persisting reconciled record failed", "id", merged.ID, "error", err)
			}
		}
		if created.ID != "" {
			idMap[entry.TargetID] = created.ID
		}
		return nil

	case model.OpUpdate:
		payload := entry.Payload
		payload.ID = target
		if err := r.gateway.UpdateItem(ctx, entry.Entity, payload); err != nil {
			return err
		}
		// Keep the local record aligned with the id the server saw.
		if target != entry.TargetID {
			if err := r.store.SaveRecord(ctx, entry.Entity, payload); err != nil {
				r.log.Warn("persisting remapped record failed", "id", target, "error", err)
			}
		}
		return nil

	case model.OpDelete:
		if err := r.gateway.DeleteItem(ctx, entry.Entity, target); err != nil {
			return err
		}
		// A read may have persisted the server-side record while the delete
		// was queued; drop whatever local copy remains under either id.
		for _, id := range []string{target, entry.TargetID} {
			if err := r.store.DeleteRecord(ctx, entry.Entity, id); err != nil {
				r.log.Warn("removing deleted record failed", "id", id, "error", err)
			}
		}
		return nil
	}

	r.log.Warn("unknown sync operation skipped", "op", string(entry.Op), "id", entry.TargetID)
	return nil
}

// Run watches the connectivity stream and drains the queue on every
// offline-to-online transition. It blocks until ctx is done or the stream
// closes; callers run it in a goroutine.
func (r *Reconciler) Run(ctx context.Context) {
	changes := r.oracle.Changes()

	// Seed pessimistically: an online transition buffered between the
	// subscription and this point must still trigger a drain, and anything
	// queued before Run started drains right away when already online.
	online := false
	if r.oracle.Online(ctx) {
		if _, err := r.Drain(ctx); err != nil {
			r.log.Warn("initial drain failed", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case now, ok := <-changes:
			if !ok {
				return
			}
			if now && !online {
				if _, err := r.Drain(ctx); err != nil {
					r.log.Warn("auto drain failed", "error", err)
				}
			}
			online = now
		}
	}
}
