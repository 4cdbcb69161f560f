// Package storeinfra implements the durable local store on SQLite via bun.
// It owns the records table, the append-only sync queue, and the small meta
// table for persisted bookkeeping values.
package storeinfra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-offline-sync/model"
	"github.com/goliatone/go-offline-sync/repository"
)

// Interface assertion to ensure Store implements repository.LocalStore.
var _ repository.LocalStore = (*Store)(nil)

type itemRow struct {
	bun.BaseModel `bun:"table:items,alias:i"`

	Entity      string    `bun:"entity,pk"`
	ID          string    `bun:"id,pk"`
	OwnerID     string    `bun:"owner_id,notnull"`
	Amount      float64   `bun:"amount"`
	Quantity    float64   `bun:"quantity"`
	Category    string    `bun:"category"`
	Description string    `bun:"description"`
	OccurredAt  time.Time `bun:"occurred_at"`
	Provenance  string    `bun:"provenance"`
}

type syncRow struct {
	bun.BaseModel `bun:"table:sync_queue,alias:sq"`

	QueueID     int64      `bun:"queue_id,pk,autoincrement"`
	TargetID    string     `bun:"target_id,notnull"`
	Entity      string     `bun:"entity,notnull"`
	Op          string     `bun:"op,notnull"`
	Payload     []byte     `bun:"payload"`
	EnqueuedAt  time.Time  `bun:"enqueued_at,notnull"`
	AttemptedAt *time.Time `bun:"attempted_at,nullzero"`
	Succeeded   bool       `bun:"succeeded"`
}

type metaRow struct {
	bun.BaseModel `bun:"table:meta,alias:m"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value"`
}

// Store is the SQLite-backed repository.LocalStore.
type Store struct {
	db  *bun.DB
	now func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used for period windows and attempt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (or creates) the SQLite database at path and returns a Store.
// Use ":memory:" for an ephemeral store.
func Open(path string, opts ...Option) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// A single connection keeps writes serialized and makes :memory: safe.
	sqldb.SetMaxOpenConns(1)

	s := &Store{
		db:  bun.NewDB(sqldb, sqlitedialect.New()),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Init creates the schema if it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	models := []any{(*itemRow)(nil), (*syncRow)(nil), (*metaRow)(nil)}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("creating table: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveRecord(ctx context.Context, entity model.EntityType, item model.Item) error {
	row := itemRowFrom(entity, item)
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (entity, id) DO UPDATE").
		Set("owner_id = EXCLUDED.owner_id").
		Set("amount = EXCLUDED.amount").
		Set("quantity = EXCLUDED.quantity").
		Set("category = EXCLUDED.category").
		Set("description = EXCLUDED.description").
		Set("occurred_at = EXCLUDED.occurred_at").
		Set("provenance = EXCLUDED.provenance").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("saving record %s: %w", item.ID, err)
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, entity model.EntityType, id string) (model.Item, bool, error) {
	var row itemRow
	err := s.db.NewSelect().Model(&row).
		Where("entity = ?", string(entity)).
		Where("id = ?", id).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return model.Item{}, false, nil
	}
	if err != nil {
		return model.Item{}, false, fmt.Errorf("reading record %s: %w", id, err)
	}
	return row.toItem(), true, nil
}

func (s *Store) GetRecordsByOwnerAndPeriod(ctx context.Context, ownerID string, entity model.EntityType, period model.Period) ([]model.Item, error) {
	start, end := period.Range(s.now())

	var rows []itemRow
	err := s.db.NewSelect().Model(&rows).
		Where("entity = ?", string(entity)).
		Where("owner_id = ?", ownerID).
		Where("occurred_at >= ?", start).
		Where("occurred_at < ?", end).
		Order("occurred_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading records for period %s: %w", string(period), err)
	}

	items := make([]model.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toItem())
	}
	return items, nil
}

func (s *Store) DeleteRecord(ctx context.Context, entity model.EntityType, id string) error {
	_, err := s.db.NewDelete().Model((*itemRow)(nil)).
		Where("entity = ?", string(entity)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	return nil
}

func (s *Store) EnqueueSync(ctx context.Context, entry model.SyncEntry) error {
	payload, err := marshalPayload(entry.Payload)
	if err != nil {
		return err
	}
	row := syncRow{
		TargetID:   entry.TargetID,
		Entity:     string(entry.Entity),
		Op:         string(entry.Op),
		Payload:    payload,
		EnqueuedAt: entry.EnqueuedAt,
	}
	if row.EnqueuedAt.IsZero() {
		row.EnqueuedAt = s.now()
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("enqueueing sync entry for %s: %w", entry.TargetID, err)
	}
	return nil
}

func (s *Store) PendingSync(ctx context.Context) ([]model.SyncEntry, error) {
	var rows []syncRow
	err := s.db.NewSelect().Model(&rows).
		Where("succeeded = ?", false).
		Order("queue_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading sync queue: %w", err)
	}

	entries := make([]model.SyncEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Store) MarkSyncOutcome(ctx context.Context, queueID int64, success bool) error {
	if success {
		// A synced entry must never replay again; remove it outright.
		_, err := s.db.NewDelete().Model((*syncRow)(nil)).
			Where("queue_id = ?", queueID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("removing synced entry %d: %w", queueID, err)
		}
		return nil
	}

	now := s.now()
	_, err := s.db.NewUpdate().Model((*syncRow)(nil)).
		Set("attempted_at = ?", now).
		Where("queue_id = ?", queueID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("marking entry %d failed: %w", queueID, err)
	}
	return nil
}

func (s *Store) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var row metaRow
	err := s.db.NewSelect().Model(&row).Where("key = ?", key).Scan(ctx)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading meta %s: %w", key, err)
	}
	return row.Value, true, nil
}

func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	row := metaRow{Key: key, Value: value}
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("writing meta %s: %w", key, err)
	}
	return nil
}

func itemRowFrom(entity model.EntityType, item model.Item) itemRow {
	return itemRow{
		Entity:      string(entity),
		ID:          item.ID,
		OwnerID:     item.OwnerID,
		Amount:      item.Amount,
		Quantity:    item.Quantity,
		Category:    item.Category,
		Description: item.Description,
		OccurredAt:  item.OccurredAt,
		Provenance:  string(item.Provenance),
	}
}

func (r itemRow) toItem() model.Item {
	return model.Item{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Amount:      r.Amount,
		Quantity:    r.Quantity,
		Category:    r.Category,
		Description: r.Description,
		OccurredAt:  r.OccurredAt,
		Provenance:  model.Provenance(r.Provenance),
	}
}
