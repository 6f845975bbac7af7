package forecast

import (
	"fmt"
	"sort"
	"time"

	"github.com/HatiCode/hyperprophet/pkg/engine"
)

// FuturePoint is one requested forecast slot: a key and a timestamp.
type FuturePoint struct {
	Key string    `json:"key"`
	DS  time.Time `json:"ds"`
}

// FutureFrame is the sequence of (key, ds) pairs a Predict call should
// forecast. It is either built by MakeFutureDataframe or supplied directly
// by the caller.
type FutureFrame []FuturePoint

// DefaultFreq is the future-range spacing used when the caller passes no
// frequency and it cannot be inferred from the training data.
const DefaultFreq = 24 * time.Hour

// futureRange builds the forecast timestamps for one fitted key: a regular
// sequence of length periods starting one step after the training maximum,
// optionally preceded by the full set of training timestamps.
//
// It is a pure function of the model's metadata; no other key is consulted.
func futureRange(model *engine.FittedModel, periods int, freq time.Duration, includeHistory bool) ([]time.Time, error) {
	if periods < 0 {
		return nil, &InvalidArgumentError{Msg: fmt.Sprintf("periods must be >= 0, got %d", periods)}
	}
	if freq < 0 {
		return nil, &InvalidArgumentError{Msg: fmt.Sprintf("freq must be a positive duration, got %v", freq)}
	}
	if freq == 0 {
		freq = inferFreq(model.TrainTimes)
	}

	var out []time.Time
	if includeHistory {
		out = append(out, model.TrainTimes...)
	}

	next := model.MaxDS
	for i := 0; i < periods; i++ {
		next = next.Add(freq)
		out = append(out, next)
	}

	return out, nil
}

// inferFreq estimates the data frequency as the median spacing between
// consecutive training timestamps. Falls back to DefaultFreq when the
// series is too short to tell.
func inferFreq(times []time.Time) time.Duration {
	if len(times) < 2 {
		return DefaultFreq
	}

	gaps := make([]time.Duration, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap > 0 {
			gaps = append(gaps, gap)
		}
	}
	if len(gaps) == 0 {
		return DefaultFreq
	}

	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return gaps[len(gaps)/2]
}
