package domain

import (
	"fmt"
	"strings"
)

// DefaultCron fires at 00:00:00 on the first day of every month.
const DefaultCron = "0 0 0 1 * ?"

const ParamCron = "cron"

type StrategyKind string

const (
	StrategyImmediate StrategyKind = "immediate"
	StrategyRecurring StrategyKind = "recurring"
)

var strategyAliases = map[string]StrategyKind{
	"immediate": StrategyImmediate,
	"simple":    StrategyImmediate,
	"recurring": StrategyRecurring,
	"scheduled": StrategyRecurring,
}

// Strategy is either Immediate or Recurring.
type Strategy interface {
	Kind() StrategyKind
}

// Immediate runs one pass on the caller's goroutine.
type Immediate struct{}

func (Immediate) Kind() StrategyKind { return StrategyImmediate }

// Recurring registers or replaces the cron trigger for the billing job.
type Recurring struct {
	Cron string
}

func (Recurring) Kind() StrategyKind { return StrategyRecurring }

// ParseStrategy builds a Strategy from a kind name and its parameters. The
// cron expression is not validated here; the scheduler rejects bad ones.
func ParseStrategy(kind string, params map[string]string) (Strategy, error) {
	resolved, ok := strategyAliases[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, kind)
	}

	switch resolved {
	case StrategyImmediate:
		return Immediate{}, nil
	default:
		expr := strings.TrimSpace(params[ParamCron])
		if expr == "" {
			expr = DefaultCron
		}
		return Recurring{Cron: expr}, nil
	}
}
