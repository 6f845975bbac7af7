// Package dataset defines the long-format observation table consumed by the
// forecaster and the partitioner that splits it into independent per-key series.
//
// An input table holds rows of (key, ds, y): key identifies one time series
// within a batch, ds is the observation timestamp, and y the observed value.
// Partitioning groups rows by key and orders each group chronologically so
// that every key can be fit and predicted in isolation.
package dataset

import (
	"encoding/json"
	"fmt"
	"time"
)

// Observation is a single row of a long-format input table.
type Observation struct {
	Key string    `json:"key"`
	DS  time.Time `json:"ds"`
	Y   float64   `json:"y"`
}

// Table is a long-format collection of observations, possibly spanning
// many keys in arbitrary row order.
type Table []Observation

// Point is one chronological observation within a series.
type Point struct {
	DS time.Time `json:"ds"`
	Y  float64   `json:"y"`
}

// Series holds the observations for exactly one key, sorted by timestamp
// ascending. A Series is immutable once built by Partition and is owned
// read-only by the job that fits it.
type Series struct {
	Key    string  `json:"key"`
	Points []Point `json:"points"`
}

// Start returns the earliest timestamp in the series.
func (s Series) Start() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[0].DS
}

// End returns the latest timestamp in the series.
func (s Series) End() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[len(s.Points)-1].DS
}

// Times returns the series timestamps in ascending order.
func (s Series) Times() []time.Time {
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.DS
	}
	return out
}

// dsLayouts are the accepted textual timestamp formats, tried in order.
var dsLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDS parses a timestamp string in RFC3339 or date-only form and
// normalizes it to UTC.
func ParseDS(s string) (time.Time, error) {
	for _, layout := range dsLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// rawObservation mirrors Observation with pointer fields so that missing
// JSON keys can be told apart from zero values.
type rawObservation struct {
	Key *string          `json:"key"`
	DS  *string          `json:"ds"`
	Y   *json.RawMessage `json:"y"`
}

// UnmarshalJSON decodes an observation row, accepting RFC3339 or date-only
// timestamps. Missing key, ds or y fields produce a SchemaError.
func (o *Observation) UnmarshalJSON(data []byte) error {
	var raw rawObservation
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var missing []string
	if raw.Key == nil {
		missing = append(missing, "key")
	}
	if raw.DS == nil {
		missing = append(missing, "ds")
	}
	if raw.Y == nil {
		missing = append(missing, "y")
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}

	ds, err := ParseDS(*raw.DS)
	if err != nil {
		return &SchemaError{Missing: nil, Detail: err.Error()}
	}

	var y float64
	if err := json.Unmarshal(*raw.Y, &y); err != nil {
		return &SchemaError{Detail: fmt.Sprintf("value for key %q is not a number", *raw.Key)}
	}

	o.Key = *raw.Key
	o.DS = ds
	o.Y = y
	return nil
}
