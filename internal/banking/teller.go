package banking

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/teller-ledger/internal/domain"
)

// Teller is the bank employee performing an operation. Authentication happens upstream.
type Teller struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	Surname   string `json:"surname"`
	Branch    string `json:"branch"`
}

// FullName is "first surname".
func (t Teller) FullName() string {
	return strings.TrimSpace(t.FirstName + " " + t.Surname)
}

func (t Teller) validate(op string) error {
	if strings.TrimSpace(t.ID) == "" || t.FullName() == "" {
		return &domain.Error{Kind: domain.ErrValidation, Op: op, Reason: "teller identity is required"}
	}
	return nil
}

// OpenAccountRequest carries the inputs of OpenAccount. An empty Branch uses the teller's branch.
type OpenAccountRequest struct {
	Teller         Teller
	CustomerID     string
	Kind           domain.AccountKind
	Branch         string
	InitialDeposit decimal.Decimal
}

// TransferRequest moves Amount from From to To in one unit of work.
type TransferRequest struct {
	From        string
	To          string
	Amount      decimal.Decimal
	Description string
}

// TransferResult holds the two ledger entries a transfer writes.
type TransferResult struct {
	Withdrawal domain.Transaction `json:"withdrawal"`
	Deposit    domain.Transaction `json:"deposit"`
}

// Balance is a point-in-time balance read.
type Balance struct {
	AccountNumber string             `json:"account_number"`
	Kind          domain.AccountKind `json:"kind"`
	Amount        decimal.Decimal    `json:"balance"`
	AsOf          time.Time          `json:"as_of"`
}
