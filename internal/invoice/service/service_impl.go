package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/antaeus/internal/clock"
	customerdomain "github.com/smallbiznis/antaeus/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/antaeus/internal/invoice/domain"
	"github.com/smallbiznis/antaeus/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         invoicedomain.Repository
	CustomerRepo customerdomain.Repository
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID        *snowflake.Node
	clock        clock.Clock
	repo         invoicedomain.Repository
	customerRepo customerdomain.Repository
}

func NewService(p ServiceParam) invoicedomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("invoice.service"),
		genID:        p.GenID,
		clock:        c,
		repo:         p.Repo,
		customerRepo: p.CustomerRepo,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAmount
	}
	status := req.Status
	if status == "" {
		status = invoicedomain.InvoiceStatusPending
	}
	if !status.Valid() {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidStatus
	}

	customer, err := s.customerRepo.FindByID(ctx, s.db, req.CustomerID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if customer == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrCustomerNotFound
	}

	now := s.clock.Now()
	invoice := invoicedomain.Invoice{
		ID:         s.genID.Generate(),
		CustomerID: customer.ID,
		Amount:     req.Amount.Round(2),
		Currency:   customer.Currency,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Insert(ctx, s.db, &invoice); err != nil {
		return invoicedomain.Invoice{}, err
	}
	return invoice, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	var filter invoicedomain.ListInvoiceFilter
	if raw := strings.ToUpper(strings.TrimSpace(req.Status)); raw != "" {
		status := invoicedomain.InvoiceStatus(raw)
		if !status.Valid() {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidStatus
		}
		filter.Status = status
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: int(req.PageSize)}
	items, err := s.repo.List(ctx, s.db, filter, page)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, page.Size(), func(i *invoicedomain.Invoice) string {
		return i.ID.String()
	})

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	return invoicedomain.ListInvoiceResponse{
		PageInfo: pageInfo,
		Invoices: invoices,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || invoiceID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidID
	}
	return s.FetchByID(ctx, invoiceID)
}

func (s *Service) FetchByID(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if item == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) FetchAllPending(ctx context.Context) ([]invoicedomain.Invoice, error) {
	return s.repo.FetchByStatus(ctx, s.db, invoicedomain.InvoiceStatusPending)
}

// UpdateStatus applies a PENDING -> PAID compare-and-set. Repeating a
// transition that already happened returns the stored invoice unchanged.
func (s *Service) UpdateStatus(ctx context.Context, id snowflake.ID, status invoicedomain.InvoiceStatus) (invoicedomain.Invoice, error) {
	if !status.Valid() {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidStatus
	}

	if status == invoicedomain.InvoiceStatusPaid {
		affected, err := s.repo.CompareAndSetStatus(ctx, s.db, id, invoicedomain.InvoiceStatusPending, status, s.clock.Now())
		if err != nil {
			return invoicedomain.Invoice{}, err
		}
		if affected > 0 {
			s.log.Debug("invoice.status.updated",
				zap.String("invoice_id", id.String()),
				zap.String("status", string(status)),
			)
		}
	}

	current, err := s.FetchByID(ctx, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if current.Status != status {
		return current, invoicedomain.ErrInvalidStatusTransition
	}
	return current, nil
}
