package cooldown

import (
	"fmt"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Policy decides when a user may submit again after a submission at submittedAt.
type Policy interface {
	NextEligible(submittedAt time.Time) time.Time
	String() string
}

// Fixed is a rolling window of Days days from the submission instant.
type Fixed struct {
	Days int
}

func (p Fixed) NextEligible(submittedAt time.Time) time.Time {
	return submittedAt.Add(time.Duration(p.Days) * day)
}

func (p Fixed) String() string {
	return fmt.Sprintf("fixed(%dd)", p.Days)
}

// CalendarMonth allows one submission per UTC calendar month.
type CalendarMonth struct{}

// NextEligible returns the first instant of the month after submittedAt's month.
// Normalising to day 1 before adding the month keeps Jan 31 from rolling into March.
func (CalendarMonth) NextEligible(submittedAt time.Time) time.Time {
	t := submittedAt.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

func (CalendarMonth) String() string {
	return "calendar_month"
}

func ParsePolicy(name string, days int) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "fixed":
		if days <= 0 {
			return nil, fmt.Errorf("fixed cooldown needs a positive day count, got %d", days)
		}
		return Fixed{Days: days}, nil
	case "calendar_month", "month":
		return CalendarMonth{}, nil
	default:
		return nil, fmt.Errorf("unknown cooldown policy %q", name)
	}
}

// Remaining is the time left until eligibility; zero or negative means eligible.
func Remaining(now, submittedAt time.Time, policy Policy) time.Duration {
	return policy.NextEligible(submittedAt).Sub(now)
}

// Accept reports whether a new submission is allowed. A nil submittedAt means no prior record.
func Accept(now time.Time, submittedAt *time.Time, policy Policy) bool {
	if submittedAt == nil {
		return true
	}
	return Remaining(now, *submittedAt, policy) <= 0
}

type Breakdown struct {
	Days    int
	Hours   int
	Minutes int
}

func (b Breakdown) IsZero() bool {
	return b.Days == 0 && b.Hours == 0 && b.Minutes == 0
}

// Split floors d into whole days, hours and minutes.
func Split(d time.Duration) Breakdown {
	if d <= 0 {
		return Breakdown{}
	}
	return Breakdown{
		Days:    int(d / day),
		Hours:   int((d % day) / time.Hour),
		Minutes: int((d % time.Hour) / time.Minute),
	}
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }
