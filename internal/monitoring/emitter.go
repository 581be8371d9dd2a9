// Package monitoring is the fire-and-forget request_log sink (spec.md
// §4.7): request_log.append must never fail the caller, so a sink failure
// degrades to an in-memory dropped-record counter rather than propagating.
//
// Grounded on the teacher's RedisStockCache (internal/service/stock_cache.go):
// same bracket-prefixed [Emitter] log lines on failure, same "log but don't
// fail the caller" discipline it already applies to cache-read errors.
package monitoring

import (
	"context"
	"log"
	"sync/atomic"

	"quantdb/internal/model"
	"quantdb/internal/store"
)

// Emitter appends RequestLog rows, swallowing store failures.
type Emitter struct {
	repo    store.RequestLogRepo
	dropped int64
}

func NewEmitter(repo store.RequestLogRepo) *Emitter {
	return &Emitter{repo: repo}
}

// Append writes entry, logging and counting (never returning) on failure.
func (e *Emitter) Append(ctx context.Context, entry *model.RequestLog) {
	if err := e.repo.Append(ctx, entry); err != nil {
		atomic.AddInt64(&e.dropped, 1)
		log.Printf("[Emitter] dropped request_log entry for %s %s: %v", entry.Operation, entry.Symbol, err)
	}
}

// Dropped reports how many request_log entries have been lost to sink
// failures since startup, surfaced via cache_stats.
func (e *Emitter) Dropped() int64 {
	return atomic.LoadInt64(&e.dropped)
}
