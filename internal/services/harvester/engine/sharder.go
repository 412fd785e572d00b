// Package engine implements the crawl engine: the time-range sharder, the websocket
// fetcher adapter, and the two-directional page-loop sweep.
package engine

import (
	"context"
	"time"

	"weibo-harvester/internal/platform/clock"
	"weibo-harvester/internal/services/harvester/domain"
)

// ShardDensityThreshold is the per-shard result budget: the paging cap times an
// approximate page size, roughly 50 pages x 20 posts/page.
const ShardDensityThreshold = domain.MaxPage * 20

// probeFunc lets the sharder ask the fetcher for a density probe without importing Fetcher
// directly, keeping the sharder pure and easy to test with a fake.
type probeFunc func(ctx context.Context, keyword string, start, end time.Time) (totalHint uint64, ok bool)

// Sharder splits a wide time window into shards small enough to fit the paging cap.
// It is pure given the probe's behavior: no state is kept between Plan calls.
type Sharder struct {
	probe probeFunc
}

// NewSharder builds a Sharder backed by a single-page fetch used only to estimate density
func NewSharder(fetcher domain.Fetcher, creds domain.Credentials) *Sharder {
	return &Sharder{
		probe: func(ctx context.Context, keyword string, start, end time.Time) (uint64, bool) {
			res, err := fetcher.Fetch(ctx, keyword, start, end, 1, creds)
			if err != nil || res.Captcha {
				return 0, false
			}
			if res.TotalHint != nil {
				return *res.TotalHint, true
			}
			return uint64(len(res.Posts)), true
		},
	}
}

// Plan splits [tLo, tHi] into contiguous, non-overlapping, hour-aligned shards whose
// union is [FloorHour(tLo), CeilHour(tHi)], bisecting at the hour boundary closest to the midpoint whenever
// the probed density exceeds ShardDensityThreshold.
func (s *Sharder) Plan(ctx context.Context, keyword string, tLo, tHi time.Time) []domain.Shard {
	tLo = clock.FloorHour(tLo)
	tHi = clock.CeilHour(tHi)
	if !tLo.Before(tHi) {
		return nil
	}
	return s.planRange(ctx, keyword, tLo, tHi)
}

func (s *Sharder) planRange(ctx context.Context, keyword string, start, end time.Time) []domain.Shard {
	hint, ok := uint64(0), false
	if s.probe != nil {
		hint, ok = s.probe(ctx, keyword, start, end)
	}

	dense := ok && hint > ShardDensityThreshold
	if !dense || end.Sub(start) <= time.Hour {
		return []domain.Shard{{Start: start, End: end}}
	}

	mid := start.Add(end.Sub(start) / 2)
	mid = nearestHourBoundary(mid, start, end)

	left := s.planRange(ctx, keyword, start, mid)
	right := s.planRange(ctx, keyword, mid, end)
	return append(left, right...)
}

// nearestHourBoundary snaps t to whichever hour-aligned instant is closer, clamped
// strictly inside (lo, hi) so bisection always makes progress.
func nearestHourBoundary(t, lo, hi time.Time) time.Time {
	floor := clock.FloorHour(t)
	ceil := clock.CeilHour(t)

	candidate := floor
	if ceil.Sub(t) < t.Sub(floor) {
		candidate = ceil
	}
	if !candidate.After(lo) {
		candidate = lo.Add(time.Hour)
	}
	if !candidate.Before(hi) {
		candidate = hi.Add(-time.Hour)
	}
	if !candidate.After(lo) || !candidate.Before(hi) {
		// window too narrow to bisect on an hour boundary; fall back to the raw midpoint
		return t
	}
	return candidate
}

// RemovingCompleted filters shards already recorded as done in a checkpoint's
// completed_shards set, so resume after Paused skips durable work.
func RemovingCompleted(shards []domain.Shard, completed []domain.Shard) []domain.Shard {
	if len(completed) == 0 {
		return shards
	}
	done := make(map[domain.Shard]bool, len(completed))
	for _, s := range completed {
		done[s] = true
	}
	out := make([]domain.Shard, 0, len(shards))
	for _, s := range shards {
		if !done[s] {
			out = append(out, s)
		}
	}
	return out
}
