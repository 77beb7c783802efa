package testutil

import (
	"time"

	"github.com/google/uuid"
)

// Fixed values for deterministic testing.
var (
	TestScoreID   = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	TestAlertID   = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	TestSubjectID = uuid.MustParse("00000000-0000-0000-0000-000000000010")

	TestTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

// FixedClock returns a clock that always reports at.
func FixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
