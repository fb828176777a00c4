package domain

import (
	"fmt"
	"time"
)

// DataUnavailableError indicates a requested date has no historical or live
// data. A backtest range must abort on it rather than silently skip.
type DataUnavailableError struct {
	Source string
	Date   time.Time
	Detail string
}

func (e *DataUnavailableError) Error() string {
	if e.Date.IsZero() {
		return fmt.Sprintf("%s: data unavailable: %s", e.Source, e.Detail)
	}
	return fmt.Sprintf("%s: no data for %s: %s", e.Source, e.Date.Format("2006-01-02"), e.Detail)
}

// StrategyConfigError reports an out-of-domain construction parameter.
// Fatal at startup.
type StrategyConfigError struct {
	Strategy string
	Field    string
	Reason   string
}

func (e *StrategyConfigError) Error() string {
	return fmt.Sprintf("strategy %s: invalid %s: %s", e.Strategy, e.Field, e.Reason)
}

// ExchangeError wraps failures from exchange adapters. Transient failures
// (timeouts, rate limits) are retried inside the executor boundary and never
// reach the strategy or the engine.
type ExchangeError struct {
	Venue     string
	Op        string
	Transient bool
	Err       error
}

func (e *ExchangeError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("exchange %s: %s: %s error: %v", e.Venue, e.Op, kind, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// InvalidStateError indicates a ledger consistency violation, e.g. closing
// more size than is open. Always fatal; it is a programming error and is
// never silently corrected.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state in %s: %s", e.Op, e.Reason)
}
