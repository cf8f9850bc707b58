// Package observability tracks which columns and map paths queries filter on,
// and how queries perform.
package observability

import (
	"sort"
	"sync"
	"time"
)

// QueryStats tracks predicate and map path frequency across executed queries.
type QueryStats struct {
	mu         sync.RWMutex
	predicates map[string]*ColumnStats
	paths      map[string]*ColumnStats
	window     time.Duration

	queries    int64
	failures   int64
	rowsServed int64
	totalTime  time.Duration
}

// ColumnStats holds statistics for a column or map path.
type ColumnStats struct {
	Column    string         `json:"column"`
	Frequency int64          `json:"frequency"`
	LastSeen  time.Time      `json:"last_seen"`
	Operators map[string]int `json:"operators"` // operator → count (e.g., "=" → 5, "IN" → 2)
}

// Summary aggregates execution counters.
type Summary struct {
	Queries    int64
	Failures   int64
	RowsServed int64
	MeanTime   time.Duration
}

// NewQueryStats creates a tracker. Entries not seen within window are
// removed by Prune.
func NewQueryStats(window time.Duration) *QueryStats {
	return &QueryStats{
		predicates: make(map[string]*ColumnStats),
		paths:      make(map[string]*ColumnStats),
		window:     window,
	}
}

// RecordPredicate records a filter on column ("table.column") with operator.
func (q *QueryStats) RecordPredicate(column, operator string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	touch(q.predicates, column).Operators[operator]++
}

// RecordPath records a MAP_VALUE path access.
func (q *QueryStats) RecordPath(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	touch(q.paths, path)
}

// RecordExecution records the outcome of one query.
func (q *QueryStats) RecordExecution(elapsed time.Duration, rows int64, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queries++
	if err != nil {
		q.failures++
	}
	q.rowsServed += rows
	q.totalTime += elapsed
}

// Summary returns the execution counters.
func (q *QueryStats) Summary() Summary {
	q.mu.RLock()
	defer q.mu.RUnlock()
	s := Summary{Queries: q.queries, Failures: q.failures, RowsServed: q.rowsServed}
	if q.queries > 0 {
		s.MeanTime = q.totalTime / time.Duration(q.queries)
	}
	return s
}

// GetTopPredicates returns copies of the n most frequent predicate columns,
// by descending frequency.
func (q *QueryStats) GetTopPredicates(n int) []ColumnStats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return top(q.predicates, n)
}

// GetTopPaths returns copies of the n most frequent map paths.
func (q *QueryStats) GetTopPaths(n int) []ColumnStats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return top(q.paths, n)
}

// Prune removes entries last seen longer than the window ago.
func (q *QueryStats) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()

	threshold := time.Now().Add(-q.window)
	for _, m := range []map[string]*ColumnStats{q.predicates, q.paths} {
		for key, stats := range m {
			if stats.LastSeen.Before(threshold) {
				delete(m, key)
			}
		}
	}
}

// touch bumps the entry for key. Must be called with the write lock held.
func touch(m map[string]*ColumnStats, key string) *ColumnStats {
	stats, ok := m[key]
	if !ok {
		stats = &ColumnStats{Column: key, Operators: make(map[string]int)}
		m[key] = stats
	}
	stats.Frequency++
	stats.LastSeen = time.Now()
	return stats
}

func top(m map[string]*ColumnStats, n int) []ColumnStats {
	if n <= 0 || len(m) == 0 {
		return []ColumnStats{}
	}

	stats := make([]ColumnStats, 0, len(m))
	for _, s := range m {
		cp := *s
		cp.Operators = make(map[string]int, len(s.Operators))
		for op, count := range s.Operators {
			cp.Operators[op] = count
		}
		stats = append(stats, cp)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Column < stats[j].Column
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}
