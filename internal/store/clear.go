package store

import (
	"context"
	"fmt"
)

// clearedTables lists every table clear_cache may purge, in an order that
// respects no foreign keys (there are none) but keeps deletion grouped by
// concern for readability in logs.
var clearedTables = []string{
	"daily_bars", "index_bars", "realtime_snapshots", "data_coverage", "financial_summaries", "assets",
}

// ClearSymbol deletes every row for symbol across all cached tables and
// reports the total rows removed (spec.md §6 clear_cache).
func ClearSymbol(ctx context.Context, db DBTX, symbol string) (int64, error) {
	var total int64
	for _, table := range clearedTables {
		res, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE symbol = $1", table), symbol)
		if err != nil {
			return total, fmt.Errorf("store: clear %s for %s: %w", table, symbol, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("store: rows affected %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

// ClearAll truncates every cached table, used when clear_cache is called
// without a symbol.
func ClearAll(ctx context.Context, db DBTX) (int64, error) {
	var total int64
	for _, table := range clearedTables {
		res, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			return total, fmt.Errorf("store: clear all %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("store: rows affected %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}
