package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pivot_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// PageCacheLookups counts page cache lookups by page and result (hit, miss, error).
	PageCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pivot_page_cache_lookups_total",
		Help: "Page cache lookups by result",
	}, []string{"page", "result"})

	// FollowOperations counts follow graph changes by operation and outcome.
	FollowOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pivot_follow_operations_total",
		Help: "Follow and unfollow calls by outcome",
	}, []string{"operation", "outcome"})

	// PostMutations counts post writes by operation.
	PostMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pivot_post_mutations_total",
		Help: "Post creates, edits and deletes",
	}, []string{"operation", "outcome"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pivot_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})
)

const queryStartKey = "pivot:query_start"

// RegisterDatabaseMetrics installs GORM callbacks that observe query latency.
func RegisterDatabaseMetrics(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(queryStartKey, time.Now())
	}
	after := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(queryStartKey)
			if !ok {
				return
			}
			start, ok := v.(time.Time)
			if !ok {
				return
			}
			table := tx.Statement.Table
			if table == "" {
				table = "unknown"
			}
			DatabaseQueryLatency.WithLabelValues(op, table).Observe(time.Since(start).Seconds())
		}
	}

	cb := db.Callback()
	steps := []func() error{
		func() error { return cb.Create().Before("gorm:create").Register("metrics:before_create", before) },
		func() error { return cb.Create().After("gorm:create").Register("metrics:after_create", after("create")) },
		func() error { return cb.Query().Before("gorm:query").Register("metrics:before_query", before) },
		func() error { return cb.Query().After("gorm:query").Register("metrics:after_query", after("query")) },
		func() error { return cb.Update().Before("gorm:update").Register("metrics:before_update", before) },
		func() error { return cb.Update().After("gorm:update").Register("metrics:after_update", after("update")) },
		func() error { return cb.Delete().Before("gorm:delete").Register("metrics:before_delete", before) },
		func() error { return cb.Delete().After("gorm:delete").Register("metrics:after_delete", after("delete")) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
