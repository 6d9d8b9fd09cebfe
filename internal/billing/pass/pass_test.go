package pass

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/antaeus/internal/billing/domain"
	"github.com/smallbiznis/antaeus/internal/events"
	invoicedomain "github.com/smallbiznis/antaeus/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/antaeus/internal/payment/domain"
	"github.com/smallbiznis/antaeus/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type memoryInvoices struct {
	mu        sync.Mutex
	invoices  []invoicedomain.Invoice
	fetchErr  error
	updateErr map[snowflake.ID]error
}

func newMemoryInvoices(invoices ...invoicedomain.Invoice) *memoryInvoices {
	return &memoryInvoices{invoices: invoices, updateErr: map[snowflake.ID]error{}}
}

func (m *memoryInvoices) FetchAllPending(context.Context) ([]invoicedomain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []invoicedomain.Invoice
	for _, invoice := range m.invoices {
		if invoice.Status == invoicedomain.InvoiceStatusPending {
			out = append(out, invoice)
		}
	}
	return out, nil
}

func (m *memoryInvoices) UpdateStatus(_ context.Context, id snowflake.ID, status invoicedomain.InvoiceStatus) (invoicedomain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateErr[id]; err != nil {
		return invoicedomain.Invoice{}, err
	}
	for i := range m.invoices {
		if m.invoices[i].ID == id {
			m.invoices[i].Status = status
			return m.invoices[i], nil
		}
	}
	return invoicedomain.Invoice{}, invoicedomain.ErrNotFound
}

func (m *memoryInvoices) status(id snowflake.ID) invoicedomain.InvoiceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, invoice := range m.invoices {
		if invoice.ID == id {
			return invoice.Status
		}
	}
	return ""
}

type scriptedGateway struct {
	mu      sync.Mutex
	results map[snowflake.ID]func() (bool, error)
	charged []snowflake.ID
}

func (g *scriptedGateway) Charge(_ context.Context, invoice invoicedomain.Invoice) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charged = append(g.charged, invoice.ID)
	if result, ok := g.results[invoice.ID]; ok {
		return result()
	}
	return true, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func pending(id snowflake.ID) invoicedomain.Invoice {
	return invoicedomain.Invoice{
		ID:         id,
		CustomerID: 100 + id,
		Amount:     decimal.NewFromInt(10),
		Currency:   money.EUR,
		Status:     invoicedomain.InvoiceStatusPending,
	}
}

func paid(id snowflake.ID) invoicedomain.Invoice {
	invoice := pending(id)
	invoice.Status = invoicedomain.InvoiceStatusPaid
	return invoice
}

func newPass(t *testing.T, repo domain.InvoiceRepository, gateway paymentdomain.Gateway, publisher events.Publisher) (*Pass, *observer.ObservedLogs) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	core, logs := observer.New(zap.DebugLevel)
	p, err := New(Params{
		Invoices:  repo,
		Gateway:   gateway,
		Log:       zap.New(core),
		GenID:     node,
		Publisher: publisher,
	})
	require.NoError(t, err)
	return p, logs
}

func TestRunChargesAndDeclines(t *testing.T) {
	repo := newMemoryInvoices(pending(1), pending(2))
	gateway := &scriptedGateway{results: map[snowflake.ID]func() (bool, error){
		2: func() (bool, error) { return false, nil },
	}}
	p, _ := newPass(t, repo, gateway, nil)

	report, err := p.Run(context.Background(), "immediate")
	require.NoError(t, err)

	assert.Equal(t, []domain.Outcome{domain.Charged(1), domain.Declined(2)}, report.Outcomes)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, repo.status(1))
	assert.Equal(t, invoicedomain.InvoiceStatusPending, repo.status(2))
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestRunIsolatesInvoiceFailures(t *testing.T) {
	repo := newMemoryInvoices(pending(1), pending(2), pending(3), pending(4))
	gateway := &scriptedGateway{results: map[snowflake.ID]func() (bool, error){
		1: func() (bool, error) { return false, paymentdomain.ErrCustomerNotFound },
		2: func() (bool, error) { return false, errors.Join(paymentdomain.ErrNetwork, errors.New("reset")) },
		3: func() (bool, error) { return false, paymentdomain.ErrCurrencyMismatch },
	}}
	p, logs := newPass(t, repo, gateway, nil)

	report, err := p.Run(context.Background(), "scheduled")
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 4)

	assert.Equal(t, domain.FailureCustomerNotFound, report.Outcomes[0].FailureKind)
	assert.Equal(t, domain.FailureNetwork, report.Outcomes[1].FailureKind)
	assert.Equal(t, domain.FailureCurrencyMismatch, report.Outcomes[2].FailureKind)
	assert.Equal(t, domain.Charged(4), report.Outcomes[3])

	for id := snowflake.ID(1); id <= 3; id++ {
		assert.Equal(t, invoicedomain.InvoiceStatusPending, repo.status(id))
	}
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, repo.status(4))
	assert.Equal(t, 3, logs.FilterMessage("billing.invoice.failed").Len())
	finish := logs.FilterMessage("billing.pass.finish").FilterField(zap.Int("error_count", 3)).All()
	require.Len(t, finish, 1)
	assert.Equal(t, zap.WarnLevel, finish[0].Level)
}

func TestClassifyChargeErrorTreatsCancellationAsNetwork(t *testing.T) {
	assert.Equal(t, domain.FailureNetwork, classifyChargeError(context.Canceled))
	assert.Equal(t, domain.FailureNetwork, classifyChargeError(context.DeadlineExceeded))
	assert.Equal(t, domain.FailureUnknown, classifyChargeError(errors.New("boom")))
}

func TestRunNeverChargesPaidInvoices(t *testing.T) {
	repo := newMemoryInvoices(paid(1), pending(2), paid(3))
	gateway := &scriptedGateway{}
	p, _ := newPass(t, repo, gateway, nil)

	_, err := p.Run(context.Background(), "immediate")
	require.NoError(t, err)
	_, err = p.Run(context.Background(), "immediate")
	require.NoError(t, err)

	assert.Equal(t, []snowflake.ID{2}, gateway.charged)
}

func TestRunEmptySnapshot(t *testing.T) {
	p, _ := newPass(t, newMemoryInvoices(), &scriptedGateway{}, nil)

	report, err := p.Run(context.Background(), "immediate")
	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
	assert.Equal(t, domain.ReportCounts{}, report.Counts())
}

func TestRunFetchFailureIsBillingError(t *testing.T) {
	repo := newMemoryInvoices(pending(1))
	repo.fetchErr = errors.New("connection refused")
	gateway := &scriptedGateway{}
	p, _ := newPass(t, repo, gateway, nil)

	_, err := p.Run(context.Background(), "scheduled")
	var billingErr *domain.BillingError
	require.ErrorAs(t, err, &billingErr)
	assert.Equal(t, "fetch_pending", billingErr.Op)
	assert.ErrorIs(t, err, repo.fetchErr)
	assert.Empty(t, gateway.charged)
}

func TestRunStatusUpdateFailure(t *testing.T) {
	repo := newMemoryInvoices(pending(1), pending(2))
	repo.updateErr[1] = errors.New("deadlock detected")
	p, _ := newPass(t, repo, &scriptedGateway{}, nil)

	report, err := p.Run(context.Background(), "immediate")
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, domain.OutcomeFailed, report.Outcomes[0].Result)
	assert.Equal(t, domain.FailureStatusUpdate, report.Outcomes[0].FailureKind)
	assert.Equal(t, domain.Charged(2), report.Outcomes[1])
	assert.Equal(t, invoicedomain.InvoiceStatusPending, repo.status(1))
}

func TestRunPublishesEvents(t *testing.T) {
	repo := newMemoryInvoices(pending(1), pending(2), pending(3))
	gateway := &scriptedGateway{results: map[snowflake.ID]func() (bool, error){
		2: func() (bool, error) { return false, nil },
		3: func() (bool, error) { return false, paymentdomain.ErrNetwork },
	}}
	publisher := &recordingPublisher{err: errors.New("broker down")}
	p, _ := newPass(t, repo, gateway, publisher)

	report, err := p.Run(context.Background(), "immediate")
	require.NoError(t, err, "publish failures must not fail the pass")
	assert.Equal(t, 3, report.Counts().Total)

	require.Len(t, publisher.events, 4)
	assert.Equal(t, events.TypeInvoiceCharged, publisher.events[0].Type)
	assert.Equal(t, events.TypeInvoiceDeclined, publisher.events[1].Type)
	assert.Equal(t, events.TypeInvoiceFailed, publisher.events[2].Type)
	assert.Equal(t, string(domain.FailureNetwork), publisher.events[2].Invoice.FailureKind)

	summary := publisher.events[3]
	assert.Equal(t, events.TypePassCompleted, summary.Type)
	assert.Equal(t, report.RunID, summary.RunID)
	assert.Equal(t, &events.Pass{Trigger: "immediate", Total: 3, Charged: 1, Declined: 1, Failed: 1}, summary.Pass)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
