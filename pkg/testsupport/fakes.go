// Package testsupport provides fixture helpers and scriptable fakes for the
// engine's consumed capabilities (remote gateway, local store). Tests wire
// them into repositories instead of real transports and databases.
package testsupport

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-offline-sync/model"
)

// FakeGateway is a scriptable in-memory remote gateway. Default behavior is
// a well-behaved server: creates assign sequential "srv_<n>" ids, queries
// return nothing. Each method can be overridden per test, and calls are
// recorded for assertions.
type FakeGateway struct {
	mu sync.Mutex

	// UserID is what CurrentUserID reports; empty means unauthenticated.
	UserID string

	CreateFn   func(ctx context.Context, entity model.EntityType, item model.Item) (model.Item, error)
	UpdateFn   func(ctx context.Context, entity model.EntityType, item model.Item) error
	DeleteFn   func(ctx context.Context, entity model.EntityType, id string) error
	QueryFn    func(ctx context.Context, entity model.EntityType, ownerID string, period model.Period) ([]model.Item, error)
	AnalysisFn func(ctx context.Context, ownerID, month string) (model.Analysis, error)

	created []model.Item
	updated []model.Item
	deleted []string
	queries int
	nextID  int
}

// NewFakeGateway creates a FakeGateway authenticated as userID.
func NewFakeGateway(userID string) *FakeGateway {
	return &FakeGateway{UserID: userID}
}

func (g *FakeGateway) CreateItem(ctx context.Context, entity model.EntityType, item model.Item) (model.Item, error) {
	g.mu.Lock()
	fn := g.CreateFn
	g.mu.Unlock()

	var created model.Item
	var err error
	if fn != nil {
		created, err = fn(ctx, entity, item)
	} else {
		g.mu.Lock()
		g.nextID++
		created = item
		created.ID = fmt.Sprintf("srv_%d", g.nextID)
		created.Provenance = model.ProvenanceServer
		g.mu.Unlock()
	}
	if err != nil {
		return model.Item{}, err
	}

	g.mu.Lock()
	g.created = append(g.created, created)
	g.mu.Unlock()
	return created, nil
}

func (g *FakeGateway) UpdateItem(ctx context.Context, entity model.EntityType, item model.Item) error {
	g.mu.Lock()
	fn := g.UpdateFn
	g.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, entity, item); err != nil {
			return err
		}
	}
	g.mu.Lock()
	g.updated = append(g.updated, item)
	g.mu.Unlock()
	return nil
}

func (g *FakeGateway) DeleteItem(ctx context.Context, entity model.EntityType, id string) error {
	g.mu.Lock()
	fn := g.DeleteFn
	g.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, entity, id); err != nil {
			return err
		}
	}
	g.mu.Lock()
	g.deleted = append(g.deleted, id)
	g.mu.Unlock()
	return nil
}

func (g *FakeGateway) QueryItems(ctx context.Context, entity model.EntityType, ownerID string, period model.Period) ([]model.Item, error) {
	g.mu.Lock()
	g.queries++
	fn := g.QueryFn
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, entity, ownerID, period)
	}
	return nil, nil
}

func (g *FakeGateway) FetchAnalysis(ctx context.Context, ownerID, month string) (model.Analysis, error) {
	g.mu.Lock()
	fn := g.AnalysisFn
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, ownerID, month)
	}
	return model.Analysis{Month: month}, nil
}

func (g *FakeGateway) CurrentUserID(_ context.Context) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.UserID, g.UserID != ""
}

// QueryCalls reports how many QueryItems calls were made.
func (g *FakeGateway) QueryCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.queries
}

// Created returns every record passed through CreateItem, in order.
func (g *FakeGateway) Created() []model.Item {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.Item(nil), g.created...)
}

// Updated returns every record passed through UpdateItem, in order.
func (g *FakeGateway) Updated() []model.Item {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.Item(nil), g.updated...)
}

// Deleted returns every id passed through DeleteItem, in order.
func (g *FakeGateway) Deleted() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.deleted...)
}

type recordKey struct {
	entity model.EntityType
	id     string
}

// MemoryStore is an in-memory repository.LocalStore. It mirrors the durable
// store's semantics (FIFO queue, success removes the entry) without SQLite,
// and exposes error hooks for failure-path tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[recordKey]model.Item
	queue   []model.SyncEntry
	meta    map[string]string
	nextID  int64

	// Now drives period filtering; defaults to time.Now.
	Now func() time.Time

	// SaveErr, DeleteErr, ReadErr, EnqueueErr, when set, fail the matching
	// operations.
	SaveErr    error
	DeleteErr  error
	ReadErr    error
	EnqueueErr error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[recordKey]model.Item),
		meta:    make(map[string]string),
		Now:     time.Now,
	}
}

func (s *MemoryStore) SaveRecord(_ context.Context, entity model.EntityType, item model.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.records[recordKey{entity, item.ID}] = item
	return nil
}

func (s *MemoryStore) GetRecord(_ context.Context, entity model.EntityType, id string) (model.Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReadErr != nil {
		return model.Item{}, false, s.ReadErr
	}
	item, ok := s.records[recordKey{entity, id}]
	return item, ok, nil
}

func (s *MemoryStore) GetRecordsByOwnerAndPeriod(_ context.Context, ownerID string, entity model.EntityType, period model.Period) ([]model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}

	start, end := period.Range(s.Now())
	var items []model.Item
	for key, item := range s.records {
		if key.entity != entity || item.OwnerID != ownerID {
			continue
		}
		if item.OccurredAt.Before(start) || !item.OccurredAt.Before(end) {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].OccurredAt.Before(items[j].OccurredAt)
	})
	return items, nil
}

func (s *MemoryStore) DeleteRecord(_ context.Context, entity model.EntityType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.records, recordKey{entity, id})
	return nil
}

func (s *MemoryStore) EnqueueSync(_ context.Context, entry model.SyncEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EnqueueErr != nil {
		return s.EnqueueErr
	}
	s.nextID++
	entry.QueueID = s.nextID
	s.queue = append(s.queue, entry)
	return nil
}

func (s *MemoryStore) PendingSync(_ context.Context) ([]model.SyncEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.SyncEntry(nil), s.queue...), nil
}

func (s *MemoryStore) MarkSyncOutcome(_ context.Context, queueID int64, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.queue {
		if s.queue[i].QueueID != queueID {
			continue
		}
		if success {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
		} else {
			now := s.Now()
			s.queue[i].AttemptedAt = &now
		}
		return nil
	}
	return nil
}

func (s *MemoryStore) GetMeta(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.meta[key]
	return v, ok, nil
}

func (s *MemoryStore) SetMeta(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[key] = value
	return nil
}

// RecordCount reports how many records of the entity are stored.
func (s *MemoryStore) RecordCount(entity model.EntityType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.records {
		if key.entity == entity {
			n++
		}
	}
	return n
}

// QueueLen reports how many entries remain in the sync queue.
func (s *MemoryStore) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
