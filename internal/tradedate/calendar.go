package tradedate

import (
	"fmt"
	"time"
)

// Calendar knows which days the exchanges publish settlements on.
type Calendar struct {
	exceptions map[string]struct{}
}

// NewCalendar builds a calendar from exception days written as MM/DD/YYYY.
func NewCalendar(exceptionDays []string) (*Calendar, error) {
	c := &Calendar{exceptions: make(map[string]struct{}, len(exceptionDays))}
	for _, d := range exceptionDays {
		t, err := Parse(d)
		if err != nil {
			return nil, fmt.Errorf("exception day: %w", err)
		}
		c.exceptions[Format(t)] = struct{}{}
	}
	return c, nil
}

// IsTradingDay reports whether s is neither a weekend nor an exception day.
func (c *Calendar) IsTradingDay(s string) (bool, error) {
	t, err := Parse(s)
	if err != nil {
		return false, err
	}
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false, nil
	}
	if c == nil {
		return true, nil
	}
	_, holiday := c.exceptions[s]
	return !holiday, nil
}
