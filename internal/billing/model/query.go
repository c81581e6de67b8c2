package model

import (
	"strings"
	"time"
)

const DefaultListLimit = 10

// ListQuery is the generic filter/sort/paginate shape accepted by list reads.
// Where keys are column names; unknown columns are rejected by the store.
type ListQuery struct {
	Where          map[string]any
	OrderBy        string
	OrderDirection string
	Limit          int
	Offset         int
}

// Normalize fills defaults and clamps invalid values.
func (q ListQuery) Normalize() ListQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if strings.EqualFold(q.OrderDirection, "desc") {
		q.OrderDirection = "DESC"
	} else {
		q.OrderDirection = "ASC"
	}
	return q
}

// CycleStart returns the start of the usage window containing now for a
// cycle anchored at anchor. An empty cycle counts from the beginning of time.
func CycleStart(cycle Interval, anchor, now time.Time) time.Time {
	if !cycle.Valid() {
		return time.Time{}
	}
	anchor = anchor.UTC()
	if anchor.IsZero() {
		return anchor
	}
	return cycleAt(cycle, anchor, cyclesElapsed(cycle, anchor, now.UTC()))
}

// CycleEnd returns when the window containing now closes, or the zero time
// for an empty cycle. It is the start of the following window.
func CycleEnd(cycle Interval, anchor, now time.Time) time.Time {
	if !cycle.Valid() {
		return time.Time{}
	}
	anchor = anchor.UTC()
	if anchor.IsZero() {
		return anchor
	}
	return cycleAt(cycle, anchor, cyclesElapsed(cycle, anchor, now.UTC())+1)
}

// cycleAt is the start of the nth window after anchor. Windows are always
// offset from the anchor, never from the previous window, so month-end
// anchors keep their schedule after AddDate normalizes short months.
func cycleAt(cycle Interval, anchor time.Time, n int) time.Time {
	switch cycle {
	case IntervalDay:
		return anchor.AddDate(0, 0, n)
	case IntervalWeek:
		return anchor.AddDate(0, 0, 7*n)
	case IntervalMonth:
		return anchor.AddDate(0, n, 0)
	default:
		return anchor.AddDate(n, 0, 0)
	}
}

// cyclesElapsed counts the whole windows between anchor and now: the largest
// n with cycleAt(n) not after now. An anchor in the future yields 0.
func cyclesElapsed(cycle Interval, anchor, now time.Time) int {
	if anchor.After(now) {
		return 0
	}
	var n int
	switch cycle {
	case IntervalDay:
		return int(now.Sub(anchor) / (24 * time.Hour))
	case IntervalWeek:
		return int(now.Sub(anchor) / (7 * 24 * time.Hour))
	case IntervalMonth:
		n = (now.Year()-anchor.Year())*12 + int(now.Month()) - int(anchor.Month())
	default:
		n = now.Year() - anchor.Year()
	}
	for n > 0 && cycleAt(cycle, anchor, n).After(now) {
		n--
	}
	return n
}
