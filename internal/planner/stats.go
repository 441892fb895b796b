package planner

import (
	"sync"

	"shelterroute/internal/model"
)

// DefaultStatsDepth is the number of recent solves kept per tenant.
const DefaultStatsDepth = 50

// StatsLog keeps a bounded window of recent solve records per tenant.
type StatsLog struct {
	mu    sync.Mutex
	depth int
	byTen map[string][]model.SolveRecord
}

func NewStatsLog(depth int) *StatsLog {
	if depth <= 0 {
		depth = DefaultStatsDepth
	}
	return &StatsLog{depth: depth, byTen: map[string][]model.SolveRecord{}}
}

// Record appends rec, evicting the oldest entry once the window is full.
func (l *StatsLog) Record(tenant string, rec model.SolveRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	recs := append(l.byTen[tenant], rec)
	if len(recs) > l.depth {
		recs = append([]model.SolveRecord(nil), recs[len(recs)-l.depth:]...)
	}
	l.byTen[tenant] = recs
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (l *StatsLog) Recent(tenant string, limit int) []model.SolveRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	recs := l.byTen[tenant]
	if limit <= 0 || limit > len(recs) {
		limit = len(recs)
	}
	out := make([]model.SolveRecord, 0, limit)
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, recs[i])
	}
	return out
}
