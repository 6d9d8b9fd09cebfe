package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/antaeus/pkg/db/pagination"
	"github.com/smallbiznis/antaeus/pkg/money"
)

type ListCustomerRequest struct {
	PageToken string
	PageSize  int32
	Currency  string
}

type ListCustomerFilter struct {
	Currency money.Currency
}

type ListCustomerResponse struct {
	pagination.PageInfo
	Customers []Customer `json:"customers"`
}

type CreateCustomerRequest struct {
	Currency string
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	List(context.Context, ListCustomerRequest) (ListCustomerResponse, error)
	GetByID(context.Context, string) (Customer, error)
}

var (
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidID       = errors.New("invalid_id")
	ErrNotFound        = errors.New("not_found")
)
