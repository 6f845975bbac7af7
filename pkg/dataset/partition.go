package dataset

import "sort"

// DedupPolicy controls how Partition treats rows that share a (key, ds) pair.
type DedupPolicy int

const (
	// DedupReject fails partitioning with a DuplicateTimestampError.
	// This is the default: duplicates within a key are a user error.
	DedupReject DedupPolicy = iota

	// DedupKeepLast silently keeps the last row seen for each (key, ds).
	DedupKeepLast
)

// PartitionOptions configures Partition.
type PartitionOptions struct {
	Dedup DedupPolicy
}

// Partition splits a long-format table into one Series per distinct key.
//
// Keys are enumerated in first-seen row order, so job enumeration is
// deterministic regardless of the eventual forecast output order. Rows
// within each key are sorted by ds ascending. Partition is purely
// functional: the input table is not modified.
//
// Rows with an empty key or a zero timestamp fail with a SchemaError.
// Two rows sharing a (key, ds) pair fail with a DuplicateTimestampError
// unless DedupKeepLast is configured.
func Partition(table Table, opts PartitionOptions) ([]Series, error) {
	groups := make(map[string][]Point)
	var order []string

	for i, row := range table {
		if row.Key == "" {
			return nil, &SchemaError{Missing: []string{"key"}, Row: i}
		}
		if row.DS.IsZero() {
			return nil, &SchemaError{Missing: []string{"ds"}, Row: i}
		}

		if _, seen := groups[row.Key]; !seen {
			order = append(order, row.Key)
		}
		groups[row.Key] = append(groups[row.Key], Point{DS: row.DS.UTC(), Y: row.Y})
	}

	out := make([]Series, 0, len(order))
	for _, key := range order {
		points := groups[key]

		// Stable sort keeps input order among equal timestamps, so
		// "keep last" below really keeps the last row seen.
		sort.SliceStable(points, func(i, j int) bool {
			return points[i].DS.Before(points[j].DS)
		})

		deduped := points[:0:0]
		for _, p := range points {
			if n := len(deduped); n > 0 && deduped[n-1].DS.Equal(p.DS) {
				if opts.Dedup == DedupKeepLast {
					deduped[n-1] = p
					continue
				}
				return nil, &DuplicateTimestampError{Key: key, DS: p.DS}
			}
			deduped = append(deduped, p)
		}

		out = append(out, Series{Key: key, Points: deduped})
	}

	return out, nil
}
