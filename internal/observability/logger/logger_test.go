package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/antaeus/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithRunID(ctx, "run-7")
	ctx = obscontext.WithActor(ctx, "system", "scheduler")

	WithContext(ctx, base).Info("billing.pass.start")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" {
		t.Fatalf("expected request_id req-1, got %v", fields["request_id"])
	}
	if fields["run_id"] != "run-7" {
		t.Fatalf("expected run_id run-7, got %v", fields["run_id"])
	}
	if fields["actor_id"] != "scheduler" {
		t.Fatalf("expected actor_id scheduler, got %v", fields["actor_id"])
	}
	if _, ok := fields["trace_id"]; ok {
		t.Fatalf("expected no trace_id without a span")
	}
}

func TestWithContextOmitsEmptyFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	WithContext(context.Background(), zap.New(core)).Info("plain")

	if got := len(logs.All()[0].Context); got != 0 {
		t.Fatalf("expected no context fields, got %d", got)
	}
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT id FROM invoices":                          "SELECT",
		"  update invoices set status = 'PAID' where id=1": "UPDATE",
		"WITH pending AS (SELECT 1) SELECT * FROM pending": "SELECT",
		"VACUUM": "UNKNOWN",
	}
	for sql, want := range cases {
		if got := operationFromSQL(sql); got != want {
			t.Fatalf("operationFromSQL(%q) = %q, want %q", sql, got, want)
		}
	}
}

func TestCronLoggerForwardsErrors(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewCronLogger(zap.New(core))

	l.Info("wake", "now", "x")
	l.Error(context.Canceled, "panic", "job", "billingJob")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zap.DebugLevel {
		t.Fatalf("expected cron info to be demoted to debug, got %v", entries[0].Level)
	}
	if entries[1].Message != "cron.panic" || entries[1].Level != zap.ErrorLevel {
		t.Fatalf("unexpected error entry %+v", entries[1].Entry)
	}
}
