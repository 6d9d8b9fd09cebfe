package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type OutcomeResult string

const (
	OutcomeCharged  OutcomeResult = "CHARGED"
	OutcomeDeclined OutcomeResult = "DECLINED"
	OutcomeFailed   OutcomeResult = "FAILED"
)

// FailureKind classifies a FAILED outcome.
type FailureKind string

const (
	FailureCustomerNotFound FailureKind = "customer_not_found"
	FailureCurrencyMismatch FailureKind = "currency_mismatch"
	FailureNetwork          FailureKind = "network_error"
	FailureStatusUpdate     FailureKind = "status_update"
	FailureUnknown          FailureKind = "unknown"
)

// Outcome is the result of billing one invoice within a pass.
type Outcome struct {
	InvoiceID   snowflake.ID  `json:"invoice_id"`
	Result      OutcomeResult `json:"result"`
	FailureKind FailureKind   `json:"failure_kind,omitempty"`
	Error       string        `json:"error,omitempty"`
}

func Charged(id snowflake.ID) Outcome {
	return Outcome{InvoiceID: id, Result: OutcomeCharged}
}

func Declined(id snowflake.ID) Outcome {
	return Outcome{InvoiceID: id, Result: OutcomeDeclined}
}

func Failed(id snowflake.ID, kind FailureKind, err error) Outcome {
	out := Outcome{InvoiceID: id, Result: OutcomeFailed, FailureKind: kind}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

// PassReport lists one outcome per invoice that was PENDING when the pass
// took its snapshot, in snapshot order.
type PassReport struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   []Outcome `json:"outcomes"`
}

type ReportCounts struct {
	Total    int `json:"total"`
	Charged  int `json:"charged"`
	Declined int `json:"declined"`
	Failed   int `json:"failed"`
}

func (r PassReport) Counts() ReportCounts {
	counts := ReportCounts{Total: len(r.Outcomes)}
	for _, outcome := range r.Outcomes {
		switch outcome.Result {
		case OutcomeCharged:
			counts.Charged++
		case OutcomeDeclined:
			counts.Declined++
		case OutcomeFailed:
			counts.Failed++
		}
	}
	return counts
}
