// Package schedule computes trigger occurrence instants from cron expressions.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FallbackDelay is how far a broken schedule is pushed out. A rule with an
// unparsable expression keeps advancing on this bound instead of halting the
// evaluator batch or firing continuously.
const FallbackDelay = 24 * time.Hour

// parser accepts standard five-field crontab expressions plus @-descriptors.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// InvalidScheduleError reports an unusable cron expression or timezone.
type InvalidScheduleError struct {
	Expr     string
	Timezone string
	err      error
}

func (e *InvalidScheduleError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("schedule: invalid %q (tz=%q): %v", e.Expr, e.Timezone, e.err)
}

func (e *InvalidScheduleError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// NextOccurrence returns the first instant after from at which the expression
// fires, evaluated in the supplied IANA timezone. An empty timezone means UTC.
// Day-of-month and day-of-week fields follow the zone's wall clock, not the
// process-local one.
func NextOccurrence(expr, timezone string, from time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, &InvalidScheduleError{Expr: expr, Timezone: timezone, err: fmt.Errorf("empty expression")}
	}

	loc := time.UTC
	if tz := strings.TrimSpace(timezone); tz != "" {
		parsed, errLoad := time.LoadLocation(tz)
		if errLoad != nil {
			return time.Time{}, &InvalidScheduleError{Expr: expr, Timezone: timezone, err: errLoad}
		}
		loc = parsed
	}

	spec, errParse := parser.Parse(expr)
	if errParse != nil {
		return time.Time{}, &InvalidScheduleError{Expr: expr, Timezone: timezone, err: errParse}
	}

	// robfig evaluates in the time value's location when the schedule itself
	// carries none, so converting from is what applies the rule's timezone.
	next := spec.Next(from.In(loc))
	if next.IsZero() {
		return time.Time{}, &InvalidScheduleError{Expr: expr, Timezone: timezone, err: fmt.Errorf("no future occurrence")}
	}
	return next, nil
}
