package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/teller-ledger/internal/banking"
	"github.com/dvloznov/teller-ledger/internal/domain"
)

// RegisterCustomerRequest is the body of POST /api/customers.
type RegisterCustomerRequest struct {
	ID           string                      `json:"id"`
	Kind         domain.CustomerKind         `json:"kind"`
	Address      string                      `json:"address"`
	Email        string                      `json:"email"`
	Phone        string                      `json:"phone"`
	Individual   *domain.IndividualProfile   `json:"individual"`
	Organization *domain.OrganizationProfile `json:"organization"`
}

func (r RegisterCustomerRequest) customer() *domain.Customer {
	return &domain.Customer{
		ID:           r.ID,
		Kind:         r.Kind,
		Address:      r.Address,
		Email:        r.Email,
		Phone:        r.Phone,
		Individual:   r.Individual,
		Organization: r.Organization,
	}
}

// CustomerResponse adds the owned account numbers and display name to a customer.
type CustomerResponse struct {
	*domain.Customer
	DisplayName    string   `json:"display_name"`
	AccountNumbers []string `json:"account_numbers"`
}

func toCustomerResponse(c *domain.Customer) CustomerResponse {
	numbers := c.AccountNumbers()
	if numbers == nil {
		numbers = []string{}
	}
	return CustomerResponse{Customer: c, DisplayName: c.DisplayName(), AccountNumbers: numbers}
}

// OpenAccountRequest is the body of POST /api/accounts.
type OpenAccountRequest struct {
	Teller         banking.Teller     `json:"teller"`
	CustomerID     string             `json:"customer_id"`
	Kind           domain.AccountKind `json:"kind"`
	Branch         string             `json:"branch"`
	InitialDeposit decimal.Decimal    `json:"initial_deposit"`
}

// AccountResponse is the public view of an account. History is served separately.
type AccountResponse struct {
	Number         string             `json:"number"`
	Kind           domain.AccountKind `json:"kind"`
	Branch         string             `json:"branch"`
	CustomerID     string             `json:"customer_id"`
	Balance        decimal.Decimal    `json:"balance"`
	OpenedAt       time.Time          `json:"opened_at"`
	LastInterestAt *time.Time         `json:"last_interest_at,omitempty"`
	Withdrawable   bool               `json:"withdrawable"`
	MonthlyRate    decimal.Decimal    `json:"monthly_rate"`
}

func toAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		Number:         a.Number(),
		Kind:           a.Kind(),
		Branch:         a.Branch(),
		CustomerID:     a.CustomerID(),
		Balance:        a.Balance(),
		OpenedAt:       a.OpenedAt(),
		LastInterestAt: a.LastInterestAt(),
		Withdrawable:   a.Policy().Withdrawable,
		MonthlyRate:    a.Policy().MonthlyRate,
	}
}

func toAccountResponses(accounts []*domain.Account) []AccountResponse {
	out := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	return out
}

// MovementRequest is the body of deposit and withdrawal requests.
type MovementRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// TransferRequest is the body of POST /api/transfers.
type TransferRequest struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// AccrualRequest is the body of interest requests. A missing as_of means now.
type AccrualRequest struct {
	AsOf *time.Time `json:"as_of"`
}

// InterestResponse reports one account's accrual.
type InterestResponse struct {
	Applied     bool                `json:"applied"`
	Months      int                 `json:"months"`
	Amount      decimal.Decimal     `json:"amount"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
}
