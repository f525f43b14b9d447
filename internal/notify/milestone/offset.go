package milestone

import (
	"math"
	"time"
)

const snapshotLayout = "2006-01-02"

// DayOffset is the signed number of whole days from today to anchor, both
// taken at midnight in loc. The anchor is read as a calendar date in its own
// location, so a DATE column loaded as UTC midnight keeps its day.
func DayOffset(anchor, now time.Time, loc *time.Location) int {
	return int(math.Round(midnight(anchor, loc).Sub(today(now, loc)).Hours() / 24))
}

// Snapshot is the value stored with a fired record for anchor.
func Snapshot(anchor time.Time) string {
	return anchor.Format(snapshotLayout)
}

// Fires reports whether rule is due for an entity whose anchor is offset
// days away. A rule 45 days before the anchor has OffsetDays -45.
func Fires(offset, ruleOffsetDays int) bool {
	return offset == -ruleOffsetDays
}

func midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func today(now time.Time, loc *time.Location) time.Time {
	return midnight(now.In(loc), loc)
}
