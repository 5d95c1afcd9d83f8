// Package counter implements the durable per-key hit counters. Every backend
// increments through the store's own atomic primitive; nothing is cached or
// batched in process.
package counter

import (
	"context"
	"sort"
)

// Record is one counter row.
type Record struct {
	Path string `json:"path"`
	Hits int64  `json:"hits"`
}

// Store is a durable key to count mapping.
type Store interface {
	// Increment adds 1 to key, creating the record at 1 when absent, and
	// returns the new count.
	Increment(ctx context.Context, key string) (int64, error)
	// Get returns the current count for key, 0 when the key was never seen.
	Get(ctx context.Context, key string) (int64, error)
	// List returns up to limit records, highest count first. limit <= 0
	// means no limit.
	List(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// Provisioner is implemented by stores that can create their own schema.
type Provisioner interface {
	EnsureSchema(ctx context.Context) error
}

// sortRecords orders by hits descending, then path, and applies limit.
func sortRecords(records []Record, limit int) []Record {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Hits != records[j].Hits {
			return records[i].Hits > records[j].Hits
		}
		return records[i].Path < records[j].Path
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}
