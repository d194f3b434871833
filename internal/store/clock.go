package store

import "time"

// now is the ledger clock. Times are UTC at microsecond precision, which
// both supported databases store losslessly.
var now = func() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
