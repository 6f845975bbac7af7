package storage

import (
	"context"
	"time"

	"github.com/HatiCode/hyperprophet/pkg/engine"
)

// KeyFailure records one key that could not be forecast in a batch, with the
// rendered error message. Messages are stored as strings so snapshots stay
// JSON round-trippable.
type KeyFailure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// Snapshot is one completed batch forecast for a named dataset: the merged
// forecast table plus the batch metadata needed to interpret it.
type Snapshot struct {
	Dataset     string    `json:"dataset"`
	Engine      string    `json:"engine"`
	GeneratedAt time.Time `json:"generatedAt"`

	Periods        int  `json:"periods"`
	FreqSeconds    int  `json:"freqSeconds"`
	IncludeHistory bool `json:"includeHistory"`

	// Keys lists the successfully forecast keys in first-seen training order.
	Keys []string `json:"keys"`

	Rows []engine.ForecastRow `json:"rows"`

	// Failures lists the keys skipped by the error policy, if any.
	Failures []KeyFailure `json:"failures,omitempty"`
}

// Store persists the latest snapshot per dataset.
type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	GetLatest(ctx context.Context, dataset string) (Snapshot, bool, error)
}

// validDatasetName reports whether a dataset name is safe to use as a
// storage key component.
func validDatasetName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.') {
			return false
		}
	}
	return true
}
