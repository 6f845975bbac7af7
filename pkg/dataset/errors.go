package dataset

import (
	"fmt"
	"strings"
	"time"
)

// SchemaError reports a malformed input table: rows missing required
// fields, or fields that cannot be parsed into the expected type.
type SchemaError struct {
	// Missing lists the absent required fields (key, ds, y), if any.
	Missing []string
	// Row is the offending row index, when known.
	Row int
	// Detail carries a parse-level description when the problem is not
	// a missing field.
	Detail string
}

func (e *SchemaError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("invalid table schema: missing required field(s) %s", strings.Join(e.Missing, ", "))
	}
	if e.Detail != "" {
		return fmt.Sprintf("invalid table schema: %s", e.Detail)
	}
	return fmt.Sprintf("invalid table schema at row %d", e.Row)
}

// DuplicateTimestampError reports two rows sharing the same (key, ds)
// pair when no deduplication policy is configured.
type DuplicateTimestampError struct {
	Key string
	DS  time.Time
}

func (e *DuplicateTimestampError) Error() string {
	return fmt.Sprintf("duplicate timestamp %s for key %q", e.DS.Format(time.RFC3339), e.Key)
}
