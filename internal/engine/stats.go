package engine

import (
	"context"
	"sort"
	"time"

	"certline/internal/domain"
	"certline/internal/repo"
)

// StatisticsFilters narrow the workflow statistics aggregation.
type StatisticsFilters struct {
	FarmerID      string
	CreatedAfter  string
	CreatedBefore string
}

// WorkflowStatistics is the read-only aggregation: applications per status
// plus average dwell time per state, computed from consecutive history
// entries. Time spent in the current (not yet left) state is excluded.
func (e Engine) WorkflowStatistics(ctx context.Context, f StatisticsFilters) ([]domain.StatusStat, error) {
	hf := repo.HistoryFilters{
		FarmerID:      f.FarmerID,
		CreatedAfter:  f.CreatedAfter,
		CreatedBefore: f.CreatedBefore,
	}
	counts, err := e.Repo.CountApplicationsByStatus(ctx, hf)
	if err != nil {
		return nil, err
	}
	history, err := e.Repo.ListAllHistory(ctx, hf)
	if err != nil {
		return nil, err
	}

	type dwell struct {
		total time.Duration
		n     int
	}
	dwells := map[domain.Status]*dwell{}
	for i := 0; i < len(history); i++ {
		cur := history[i]
		if i+1 >= len(history) || history[i+1].ApplicationID != cur.ApplicationID {
			continue
		}
		next := history[i+1]
		entered, err1 := time.Parse(time.RFC3339, cur.TS)
		left, err2 := time.Parse(time.RFC3339, next.TS)
		if err1 != nil || err2 != nil || left.Before(entered) {
			continue
		}
		d, ok := dwells[cur.ToStatus]
		if !ok {
			d = &dwell{}
			dwells[cur.ToStatus] = d
		}
		d.total += left.Sub(entered)
		d.n++
	}

	statuses := map[domain.Status]struct{}{}
	for s := range counts {
		statuses[s] = struct{}{}
	}
	for s := range dwells {
		statuses[s] = struct{}{}
	}
	stats := make([]domain.StatusStat, 0, len(statuses))
	for s := range statuses {
		stat := domain.StatusStat{Status: s, Count: counts[s]}
		if d := dwells[s]; d != nil && d.n > 0 {
			stat.AvgDwellSecs = d.total.Seconds() / float64(d.n)
		}
		stats = append(stats, stat)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Status < stats[j].Status })
	return stats, nil
}
