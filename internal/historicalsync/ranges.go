// Package historicalsync implements per-network backfill (spec.md §4.2): it
// subtracts the event store's cached ranges from a filter's configured
// window, partitions the remainder into bounded fetch tasks, and drives them
// over a bounded worker pool until every filter's queue is empty.
package historicalsync

import "github.com/goran-ethernal/ChainIndexor/internal/chaintypes"

// BlockRange is an inclusive [From, To] block window.
type BlockRange struct {
	From uint64
	To   uint64
}

// GetMissingRanges subtracts cached (sorted, disjoint) ranges from [from, to],
// generalized from the teacher's fetcher.GetMissingRanges (per-address
// coverage subtraction) to the event store's per-filter CachedRange rows.
func GetMissingRanges(from, to uint64, cached []chaintypes.CachedRange) []BlockRange {
	if from > to {
		return nil
	}
	if len(cached) == 0 {
		return []BlockRange{{From: from, To: to}}
	}

	var missing []BlockRange
	current := from

	for _, r := range cached {
		if r.StartBlock > current {
			end := r.StartBlock - 1
			if end > to {
				end = to
			}
			missing = append(missing, BlockRange{From: current, To: end})
		}
		if r.EndBlock >= current {
			current = r.EndBlock + 1
		}
		if current > to {
			break
		}
	}

	if current <= to {
		missing = append(missing, BlockRange{From: current, To: to})
	}

	return missing
}

// Partition splits each range into chunks of at most maxBlockRange blocks
// each, the task-sizing step of spec.md §4.2 step 4.
func Partition(ranges []BlockRange, maxBlockRange uint64) []BlockRange {
	if maxBlockRange == 0 {
		return ranges
	}
	var out []BlockRange
	for _, r := range ranges {
		for start := r.From; start <= r.To; {
			end := start + maxBlockRange - 1
			if end > r.To {
				end = r.To
			}
			out = append(out, BlockRange{From: start, To: end})
			if end == r.To {
				break
			}
			start = end + 1
		}
	}
	return out
}
