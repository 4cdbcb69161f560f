package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goliatone/go-offline-sync/cache"
	"github.com/goliatone/go-offline-sync/flight"
	"github.com/goliatone/go-offline-sync/model"
)

// ErrNoIdentity is returned when no authenticated owner id is available.
// It is the one condition allowed to short-circuit an operation without
// attempting any I/O.
var ErrNoIdentity = errors.New("repository: no authenticated owner id")

// ErrMissingID is returned by mutations that require a record identifier.
var ErrMissingID = errors.New("repository: record id is required")

// ErrMissingDependency is returned by constructors when a required
// collaborator was not provided.
var ErrMissingDependency = errors.New("repository: missing dependency")

// LocalStore is the durable on-device store the repositories persist through.
// It holds records plus the sync queue of pending mutations. Implementations
// live under internal/storeinfra; tests use the in-memory fake from
// pkg/testsupport.
type LocalStore interface {
	// SaveRecord inserts or overwrites a record by id.
	SaveRecord(ctx context.Context, entity model.EntityType, item model.Item) error
	// GetRecord returns the record with the given id, if present.
	GetRecord(ctx context.Context, entity model.EntityType, id string) (model.Item, bool, error)
	// GetRecordsByOwnerAndPeriod returns the owner's records whose occurred-at
	// falls inside the period's current calendar window, oldest first.
	GetRecordsByOwnerAndPeriod(ctx context.Context, ownerID string, entity model.EntityType, period model.Period) ([]model.Item, error)
	// DeleteRecord removes a record by id. Deleting an absent id is a no-op.
	DeleteRecord(ctx context.Context, entity model.EntityType, id string) error
	// EnqueueSync appends a pending mutation to the sync queue.
	EnqueueSync(ctx context.Context, entry model.SyncEntry) error
	// PendingSync returns unsynced queue entries in strict FIFO order.
	PendingSync(ctx context.Context) ([]model.SyncEntry, error)
	// MarkSyncOutcome records a replay outcome: success removes the entry so
	// it can never be replayed again, failure stamps the attempt and keeps it
	// queued for the next drain.
	MarkSyncOutcome(ctx context.Context, queueID int64, success bool) error
	// GetMeta and SetMeta read and write small persisted bookkeeping values,
	// such as the last analysis refresh date.
	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
}

// RemoteGateway abstracts outbound calls to the backing service. The
// repositories treat it as a capability interface: transport, endpoint
// catalog, and response-shape decoding all live behind it, so every method
// already returns uniform model types.
type RemoteGateway interface {
	// CreateItem creates a record server-side and returns it with the
	// server-assigned id. A server-reported duplicate is surfaced as success
	// with the existing record.
	CreateItem(ctx context.Context, entity model.EntityType, item model.Item) (model.Item, error)
	UpdateItem(ctx context.Context, entity model.EntityType, item model.Item) error
	DeleteItem(ctx context.Context, entity model.EntityType, id string) error
	QueryItems(ctx context.Context, entity model.EntityType, ownerID string, period model.Period) ([]model.Item, error)
	FetchAnalysis(ctx context.Context, ownerID, month string) (model.Analysis, error)
	// CurrentUserID returns the authenticated owner id, if any.
	CurrentUserID(ctx context.Context) (string, bool)
}

// ConnectivityOracle reports the device's online state and gates whether
// remote calls are attempted.
type ConnectivityOracle interface {
	Online(ctx context.Context) bool
	// Changes returns a stream of online-state values. The sync reconciler
	// watches it for offline-to-online transitions.
	Changes() <-chan bool
}

// Deps bundles the collaborators a repository is constructed with. Cache and
// Flights are shared process-wide; everything else may be shared or
// per-entity.
type Deps struct {
	Store   LocalStore
	Gateway RemoteGateway
	Oracle  ConnectivityOracle
	Cache   cache.Store
	Flights *flight.Group

	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Now defaults to time.Now; injectable for tests.
	Now func() time.Time
	// WaitTimeout bounds how long a read waits on another caller's in-flight
	// fetch before falling back to cached or local data. Zero waits for the
	// caller's context only.
	WaitTimeout time.Duration

	// Freshness windows per read tier: Short for volatile reads such as the
	// daily list and total, Medium for weekly and monthly lists, Long for the
	// slow-moving yearly view. Zero values take the package defaults.
	FreshnessShort  time.Duration
	FreshnessMedium time.Duration
	FreshnessLong   time.Duration
}

func (d *Deps) validate() error {
	if d.Store == nil || d.Gateway == nil || d.Oracle == nil || d.Cache == nil {
		return ErrMissingDependency
	}
	if d.Flights == nil {
		d.Flights = flight.NewGroup()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.FreshnessShort <= 0 {
		d.FreshnessShort = cache.FreshnessShort
	}
	if d.FreshnessMedium <= 0 {
		d.FreshnessMedium = cache.FreshnessMedium
	}
	if d.FreshnessLong <= 0 {
		d.FreshnessLong = cache.FreshnessLong
	}
	return nil
}

// mergeServerItem folds a server-returned record over the locally persisted
// one. The server response may carry only the assigned id, so local fields
// win wherever the server echoed nothing.
func mergeServerItem(local, server model.Item) model.Item {
	merged := local
	merged.ID = server.ID
	merged.Provenance = model.ProvenanceServer
	if server.OwnerID != "" {
		merged.OwnerID = server.OwnerID
	}
	if server.Amount != 0 {
		merged.Amount = server.Amount
	}
	if server.Quantity != 0 {
		merged.Quantity = server.Quantity
	}
	if server.Category != "" {
		merged.Category = server.Category
	}
	if server.Description != "" {
		merged.Description = server.Description
	}
	if !server.OccurredAt.IsZero() {
		merged.OccurredAt = server.OccurredAt
	}
	return merged
}
