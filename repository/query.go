package repository

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goliatone/go-offline-sync/cache"
	"github.com/goliatone/go-offline-sync/flight"
	"github.com/goliatone/go-offline-sync/model"
)

// QueryRepository orchestrates the read path for one entity type:
// cache check, in-flight coordination, source decision (remote vs local
// store), and cache population. Remote failures degrade silently to local
// data; the only error a caller ever sees is a missing identity.
type QueryRepository struct {
	store       LocalStore
	gateway     RemoteGateway
	oracle      ConnectivityOracle
	cache       cache.Store
	flights     *flight.Group
	entity      model.EntityType
	log         *slog.Logger
	now         func() time.Time
	waitTimeout time.Duration

	freshShort  time.Duration
	freshMedium time.Duration
	freshLong   time.Duration

	// Serializes the initial warm load so two concurrent bootstraps cannot
	// both hit the remote gateway.
	bootstrapMu sync.Mutex
	warmed      bool
}

// NewQueryRepository constructs a QueryRepository for one entity type.
func NewQueryRepository(entity model.EntityType, deps Deps) (*QueryRepository, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &QueryRepository{
		store:       deps.Store,
		gateway:     deps.Gateway,
		oracle:      deps.Oracle,
		cache:       deps.Cache,
		flights:     deps.Flights,
		entity:      entity,
		log:         deps.Logger.With("entity", string(entity)),
		now:         deps.Now,
		waitTimeout: deps.WaitTimeout,
		freshShort:  deps.FreshnessShort,
		freshMedium: deps.FreshnessMedium,
		freshLong:   deps.FreshnessLong,
	}, nil
}

// defaultMaxAge picks the freshness window for a period's list: today's view
// changes with every entry, the yearly one barely moves.
func (r *QueryRepository) defaultMaxAge(period model.Period) time.Duration {
	switch period {
	case model.PeriodDaily:
		return r.freshShort
	case model.PeriodYearly:
		return r.freshLong
	default:
		return r.freshMedium
	}
}

// QueryOption tunes a single read.
type QueryOption func(*queryOptions)

type queryOptions struct {
	maxAge    time.Duration
	maxAgeSet bool
	force     bool
}

// WithMaxAge overrides the freshness window applied to the cache check.
func WithMaxAge(d time.Duration) QueryOption {
	return func(o *queryOptions) {
		o.maxAge = d
		o.maxAgeSet = true
	}
}

// WithForceRefresh bypasses the cache and fetches from the remote gateway.
func WithForceRefresh() QueryOption {
	return func(o *queryOptions) { o.force = true }
}

// ItemsByPeriod returns the owner's records for the period's current
// calendar window.
func (r *QueryRepository) ItemsByPeriod(ctx context.Context, period model.Period, opts ...QueryOption) ([]model.Item, error) {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !o.maxAgeSet {
		o.maxAge = r.defaultMaxAge(period)
	}

	key := listKey(r.entity, period)
	if !o.force {
		if items, ok := cache.GetAs[[]model.Item](r.cache, key, o.maxAge); ok {
			return items, nil
		}
	}

	f, owner := r.flights.Register(key)
	if !owner {
		return r.awaitFlight(ctx, key, f, period)
	}

	items, err := r.fetch(ctx, period, o.force)
	if err != nil {
		r.flights.CompleteError(key, err)
		return nil, err
	}
	r.cache.Set(key, items)
	r.flights.Complete(key, items)
	return items, nil
}

// awaitFlight waits on another caller's fetch, then re-checks the cache. If
// the flight errors or the wait deadline fires, the reader falls back to the
// local store rather than surfacing a transport problem.
func (r *QueryRepository) awaitFlight(ctx context.Context, key string, f *flight.Flight, period model.Period) ([]model.Item, error) {
	wctx := ctx
	if r.waitTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, r.waitTimeout)
		defer cancel()
	}

	v, err := f.Wait(wctx)
	if err == nil {
		if items, ok := v.([]model.Item); ok {
			return items, nil
		}
	} else {
		r.log.Debug("in-flight wait did not resolve", "key", key, "error", err)
	}

	if items, ok := cache.GetAs[[]model.Item](r.cache, key, 0); ok {
		return items, nil
	}
	return r.readLocal(ctx, period)
}

// fetch is the owner-side source decision: remote when forced or when online
// with no usable local records, the local store otherwise. A remote failure
// falls back to local data silently.
func (r *QueryRepository) fetch(ctx context.Context, period model.Period, force bool) ([]model.Item, error) {
	ownerID, ok := r.gateway.CurrentUserID(ctx)
	if !ok || ownerID == "" {
		return nil, ErrNoIdentity
	}

	local, err := r.store.GetRecordsByOwnerAndPeriod(ctx, ownerID, r.entity, period)
	if err != nil {
		r.log.Warn("local store read failed", "period", string(period), "error", err)
		local = nil
	}

	if !force && (!r.oracle.Online(ctx) || len(local) > 0) {
		return local, nil
	}

	remote, err := r.gateway.QueryItems(ctx, r.entity, ownerID, period)
	if err != nil {
		r.log.Warn("remote query failed, serving local records", "period", string(period), "error", err)
		return local, nil
	}

	// Persist for offline availability. A failed save only costs offline
	// coverage, not this response.
	for _, item := range remote {
		if err := r.store.SaveRecord(ctx, r.entity, item); err != nil {
			r.log.Warn("persisting fetched record failed", "id", item.ID, "error", err)
		}
	}
	return remote, nil
}

func (r *QueryRepository) readLocal(ctx context.Context, period model.Period) ([]model.Item, error) {
	ownerID, ok := r.gateway.CurrentUserID(ctx)
	if !ok || ownerID == "" {
		return nil, ErrNoIdentity
	}
	items, err := r.store.GetRecordsByOwnerAndPeriod(ctx, ownerID, r.entity, period)
	if err != nil {
		r.log.Warn("local fallback read failed", "period", string(period), "error", err)
		return nil, nil
	}
	return items, nil
}

// DailyTotal returns the sum of today's amounts, cached under its own key
// with the short freshness tier.
func (r *QueryRepository) DailyTotal(ctx context.Context) (float64, error) {
	key := dailyTotalKey(r.entity)
	if total, ok := cache.GetAs[float64](r.cache, key, r.freshShort); ok {
		return total, nil
	}

	items, err := r.ItemsByPeriod(ctx, model.PeriodDaily)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, item := range items {
		total += item.Amount
	}
	r.cache.Set(key, total)
	return total, nil
}

// Analysis returns the current month's derived breakdown. The snapshot never
// ages out of the cache: a miss always means first load or a mutation
// invalidated it, and in both cases the snapshot is recomputed immediately
// regardless of the daily refresh timer. The timer only caps proactive
// refetching, see RefreshAnalysis.
func (r *QueryRepository) Analysis(ctx context.Context) (model.Analysis, error) {
	month := model.MonthKey(r.now())
	key := analysisKey(month)
	if a, ok := cache.GetAs[model.Analysis](r.cache, key, 0); ok {
		return a, nil
	}

	f, owner := r.flights.Register(key)
	if !owner {
		wctx := ctx
		if r.waitTimeout > 0 {
			var cancel context.CancelFunc
			wctx, cancel = context.WithTimeout(ctx, r.waitTimeout)
			defer cancel()
		}
		if v, err := f.Wait(wctx); err == nil {
			if a, ok := v.(model.Analysis); ok {
				return a, nil
			}
		}
		if a, ok := cache.GetAs[model.Analysis](r.cache, key, 0); ok {
			return a, nil
		}
		return r.computeLocalAnalysis(ctx, month)
	}

	a, err := r.fetchAnalysis(ctx, month)
	if err != nil {
		r.flights.CompleteError(key, err)
		return model.Analysis{}, err
	}
	r.cache.Set(key, a)
	r.flights.Complete(key, a)
	return a, nil
}

func (r *QueryRepository) fetchAnalysis(ctx context.Context, month string) (model.Analysis, error) {
	ownerID, ok := r.gateway.CurrentUserID(ctx)
	if !ok || ownerID == "" {
		return model.Analysis{}, ErrNoIdentity
	}

	if r.oracle.Online(ctx) {
		a, err := r.gateway.FetchAnalysis(ctx, ownerID, month)
		if err == nil {
			if err := r.store.SetMeta(ctx, metaLastAnalysisRefresh, r.today()); err != nil {
				r.log.Warn("persisting analysis refresh date failed", "error", err)
			}
			return a, nil
		}
		r.log.Warn("remote analysis failed, computing locally", "month", month, "error", err)
	}
	return r.computeLocalAnalysis(ctx, month)
}

func (r *QueryRepository) computeLocalAnalysis(ctx context.Context, month string) (model.Analysis, error) {
	ownerID, ok := r.gateway.CurrentUserID(ctx)
	if !ok || ownerID == "" {
		return model.Analysis{}, ErrNoIdentity
	}
	items, err := r.store.GetRecordsByOwnerAndPeriod(ctx, ownerID, r.entity, model.PeriodMonthly)
	if err != nil {
		r.log.Warn("local analysis compute failed", "month", month, "error", err)
		items = nil
	}
	return model.AnalysisFromItems(month, items, r.now()), nil
}

// RefreshAnalysis proactively refetches the analysis snapshot, at most once
// per calendar day. Mutations do not need it for correctness (they invalidate
// the cached snapshot, so the next read recomputes); it exists to warm the
// snapshot without hammering the aggregation endpoint.
func (r *QueryRepository) RefreshAnalysis(ctx context.Context) {
	if last, ok, err := r.store.GetMeta(ctx, metaLastAnalysisRefresh); err == nil && ok && last == r.today() {
		return
	}

	r.cache.Invalidate(analysisKey(model.MonthKey(r.now())))
	if _, err := r.Analysis(ctx); err != nil {
		r.log.Debug("proactive analysis refresh skipped", "error", err)
	}
}

// Warm performs the initial bootstrap load once: monthly items plus the
// analysis snapshot. Concurrent callers serialize on the bootstrap guard so
// only the first hits the remote gateway.
func (r *QueryRepository) Warm(ctx context.Context) error {
	r.bootstrapMu.Lock()
	defer r.bootstrapMu.Unlock()
	if r.warmed {
		return nil
	}

	if _, err := r.ItemsByPeriod(ctx, model.PeriodMonthly); err != nil {
		return err
	}
	r.RefreshAnalysis(ctx)
	r.warmed = true
	return nil
}

func (r *QueryRepository) today() string {
	return r.now().Format("2006-01-02")
}
