package repository

import (
	"github.com/goliatone/go-offline-sync/cache"
	"github.com/goliatone/go-offline-sync/model"
)

// metaLastAnalysisRefresh is the persisted bookkeeping key holding the date
// (YYYY-MM-DD) of the last proactive analysis refetch.
const metaLastAnalysisRefresh = "analysis_last_refresh"

func listKey(entity model.EntityType, period model.Period) string {
	return cache.Key("items", string(entity), string(period))
}

func dailyTotalKey(entity model.EntityType) string {
	return cache.Key("daily_total", string(entity))
}

func analysisKey(month string) string {
	return cache.Key("analysis", month)
}

// InvalidationGroup enumerates every cache key a mutation on the entity
// affects: all period list views, the daily total aggregate, and the current
// month's analysis snapshot. Partial invalidation that leaves a stale
// aggregate is a defect, so mutations always invalidate the whole group.
func InvalidationGroup(entity model.EntityType, month string) []string {
	keys := make([]string, 0, len(model.Periods())+2)
	for _, period := range model.Periods() {
		keys = append(keys, listKey(entity, period))
	}
	keys = append(keys, dailyTotalKey(entity), analysisKey(month))
	return keys
}
