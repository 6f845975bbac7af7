package forecast

import (
	"github.com/HatiCode/hyperprophet/pkg/dispatch"
	"github.com/HatiCode/hyperprophet/pkg/engine"
)

// ErrorPolicy decides what a batch call does when some keys fail.
type ErrorPolicy int

const (
	// ErrorPolicyRaise fails the whole call with an AggregateError listing
	// every failing key. No partial table is returned.
	ErrorPolicyRaise ErrorPolicy = iota

	// ErrorPolicySkip omits failed keys from the table and reports them
	// separately, surfacing partial availability.
	ErrorPolicySkip
)

// mergeRows concatenates the successful per-key forecast tables and collects
// the per-key failures.
//
// Row order across keys is explicitly unspecified: results arrive in
// completion order and no global sort is applied, since forcing an order
// would serialize what the dispatcher just parallelized. Correctness is
// keyed by the (key, ds) columns, not by position.
func mergeRows(results []dispatch.Result[[]engine.ForecastRow]) ([]engine.ForecastRow, []KeyError) {
	var rows []engine.ForecastRow
	var failures []KeyError

	for _, res := range results {
		if res.Err != nil {
			failures = append(failures, KeyError{Key: res.Key, Err: res.Err})
			continue
		}
		rows = append(rows, res.Value...)
	}

	return rows, failures
}

// applyPolicy resolves a failure list against the configured policy: raise
// turns any failure into an AggregateError, skip passes the failures
// through as a side-channel report.
func applyPolicy(failures []KeyError, policy ErrorPolicy) ([]KeyError, error) {
	if len(failures) == 0 {
		return nil, nil
	}
	if policy == ErrorPolicyRaise {
		return nil, &AggregateError{Errors: failures}
	}
	return failures, nil
}
