package store

import (
	"context"
	"fmt"

	"quantdb/internal/model"
)

// RequestLogRepo appends monitoring records (spec.md §3, §4.7). Writes are
// append-only and fire-and-forget from the caller's perspective; the
// monitoring emitter (internal/monitoring) is the only writer.
type RequestLogRepo interface {
	Append(ctx context.Context, entry *model.RequestLog) error
}

type requestLogRepo struct {
	db DBTX
}

func NewRequestLogRepo(db DBTX) RequestLogRepo {
	return &requestLogRepo{db: db}
}

func (r *requestLogRepo) Append(ctx context.Context, entry *model.RequestLog) error {
	const query = `INSERT INTO request_log (id, ts, operation, symbol, requested_start, requested_end,
	                                         resolved_start, resolved_end, cache_hit_ratio, upstream_calls,
	                                         latency_ms, outcome, error_message)
	               VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.Timestamp, entry.Operation, entry.Symbol,
		entry.RequestedStart, entry.RequestedEnd, entry.ResolvedStart, entry.ResolvedEnd,
		entry.CacheHitRatio, entry.UpstreamCalls, entry.LatencyMS, string(entry.Outcome), entry.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("store: append request log %s: %w", entry.Operation, err)
	}
	return nil
}
