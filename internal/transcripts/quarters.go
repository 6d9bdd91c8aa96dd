// Package transcripts retrieves historical earnings-call transcripts and assembles them into
// the chronological period sequence the statistics engine consumes.
package transcripts

import (
	"fmt"
	"time"
)

// Quarter identifies one fiscal quarter.
type Quarter struct {
	Year    int
	Quarter int
}

func (q Quarter) String() string {
	return fmt.Sprintf("Q%d %d", q.Quarter, q.Year)
}

// Prev returns the quarter before q.
func (q Quarter) Prev() Quarter {
	if q.Quarter <= 1 {
		return Quarter{Year: q.Year - 1, Quarter: 4}
	}
	return Quarter{Year: q.Year, Quarter: q.Quarter - 1}
}

// QuarterOf returns the calendar quarter containing t (boundaries after months 3, 6, 9, 12).
func QuarterOf(t time.Time) Quarter {
	return Quarter{Year: t.Year(), Quarter: (int(t.Month())-1)/3 + 1}
}

// LastCompleted returns the most recently completed quarter relative to now.
func LastCompleted(now time.Time) Quarter {
	return QuarterOf(now).Prev()
}

// ListPeriods enumerates the yearsBack*4 most recent completed quarters, newest first.
// The result depends only on now.
func ListPeriods(now time.Time, yearsBack int) []Quarter {
	if yearsBack <= 0 {
		return nil
	}
	quarters := make([]Quarter, 0, yearsBack*4)
	q := LastCompleted(now)
	for range yearsBack * 4 {
		quarters = append(quarters, q)
		q = q.Prev()
	}
	return quarters
}

// RecentQuarters returns the n most recent completed quarters, newest first.
func RecentQuarters(now time.Time, n int) []Quarter {
	if n <= 0 {
		return nil
	}
	return ListPeriods(now, n/4+1)[:n]
}
