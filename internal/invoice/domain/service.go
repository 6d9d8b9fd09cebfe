package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/antaeus/pkg/db/pagination"
)

type ListInvoiceRequest struct {
	PageToken string
	PageSize  int32
	Status    string
}

type ListInvoiceFilter struct {
	Status     InvoiceStatus
	CustomerID snowflake.ID
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type CreateInvoiceRequest struct {
	CustomerID snowflake.ID
	Amount     decimal.Decimal
	Status     InvoiceStatus
}

type Service interface {
	Create(context.Context, CreateInvoiceRequest) (Invoice, error)
	List(context.Context, ListInvoiceRequest) (ListInvoiceResponse, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	FetchByID(ctx context.Context, id snowflake.ID) (Invoice, error)
	// FetchAllPending returns every PENDING invoice ordered by id.
	FetchAllPending(ctx context.Context) ([]Invoice, error)
	UpdateStatus(ctx context.Context, id snowflake.ID, status InvoiceStatus) (Invoice, error)
}

var (
	ErrInvalidID               = errors.New("invalid_id")
	ErrInvalidStatus           = errors.New("invalid_status")
	ErrInvalidAmount           = errors.New("invalid_amount")
	ErrInvalidStatusTransition = errors.New("invalid_status_transition")
	ErrCustomerNotFound        = errors.New("customer_not_found")
	ErrNotFound                = errors.New("not_found")
)
