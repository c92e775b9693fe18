// Package handlers implements the REST endpoints on top of the banking service.
package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/teller-ledger/internal/banking"
	"github.com/dvloznov/teller-ledger/internal/domain"
	"github.com/dvloznov/teller-ledger/internal/interest"
	"github.com/dvloznov/teller-ledger/internal/jobs"
	"github.com/dvloznov/teller-ledger/internal/repository"
)

// CustomerService is the customer half of banking.Service.
type CustomerService interface {
	RegisterCustomer(ctx context.Context, customer *domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error)
	GetCustomerAccounts(ctx context.Context, customerID string) ([]*domain.Account, error)
	ListCustomers(ctx context.Context) ([]*domain.Customer, error)
}

// AccountService is the account half of banking.Service.
type AccountService interface {
	OpenAccount(ctx context.Context, req banking.OpenAccountRequest) (*domain.Account, error)
	Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (domain.Transaction, error)
	Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (domain.Transaction, error)
	Transfer(ctx context.Context, req banking.TransferRequest) (banking.TransferResult, error)
	ApplyInterest(ctx context.Context, accountNumber string, asOf time.Time) (domain.InterestResult, error)
	CloseAccount(ctx context.Context, accountNumber string) error
	GetBalance(ctx context.Context, accountNumber string) (banking.Balance, error)
	GetAccount(ctx context.Context, accountNumber string) (*domain.Account, error)
	GetTransactions(ctx context.Context, accountNumber string, filter repository.TransactionFilter) ([]domain.Transaction, error)
	GetRecentTransactions(ctx context.Context, accountNumber string, limit int) ([]domain.Transaction, error)
	ListAccounts(ctx context.Context, limit int) ([]*domain.Account, error)
	VerifyAccount(ctx context.Context, accountNumber string) error
}

// InterestRunner is the part of interest.Scheduler exposed over HTTP.
type InterestRunner interface {
	RunOnce(ctx context.Context, asOf time.Time) (*jobs.InterestRun, error)
	Runs(ctx context.Context, filter jobs.RunFilter) ([]*jobs.InterestRun, error)
	Run(ctx context.Context, id string) (*jobs.InterestRun, error)
	State() interest.State
	Period() time.Duration
}

var (
	_ CustomerService = (*banking.Service)(nil)
	_ AccountService  = (*banking.Service)(nil)
	_ InterestRunner  = (*interest.Scheduler)(nil)
)

// queryInt reads a non-negative integer query parameter, returning def when absent.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

// queryTime accepts RFC 3339 timestamps or plain dates. A plain "until" date covers the whole day.
func queryTime(c *gin.Context, name string, endOfDay bool) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC 3339 or YYYY-MM-DD", name)
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return d, nil
}
