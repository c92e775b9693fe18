package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation covers bad input such as a non-positive amount or a deposit below a minimum.
	ErrValidation = errors.New("validation error")
	// ErrInvalidAmount is the validation failure for a non-positive amount.
	ErrInvalidAmount = fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	// ErrIneligibleCustomer is a business-rule rejection of the account owner.
	ErrIneligibleCustomer = errors.New("customer is not eligible")
	// ErrNotFound means the account or customer does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientFunds means a withdrawal exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUnsupportedOperation means the account kind does not allow the operation.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrStorage wraps any persistence failure.
	ErrStorage = errors.New("storage error")
	// ErrLedgerMismatch means the balance does not match the replayed history.
	ErrLedgerMismatch = errors.New("ledger mismatch")
)

// Error is a rejected operation with enough context to render a message.
type Error struct {
	Kind          error
	Op            string
	AccountNumber string
	CustomerID    string
	Amount        *decimal.Decimal
	Reason        string
	Err           error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.AccountNumber != "" {
		fmt.Fprintf(&b, " (account %s", e.AccountNumber)
		if e.Amount != nil {
			fmt.Fprintf(&b, ", amount %s", e.Amount.StringFixed(2))
		}
		b.WriteString(")")
	} else if e.CustomerID != "" {
		fmt.Fprintf(&b, " (customer %s)", e.CustomerID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the sentinel kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// NewError builds an Error for the given sentinel.
func NewError(kind error, op, accountNumber, reason string) *Error {
	return &Error{Kind: kind, Op: op, AccountNumber: accountNumber, Reason: reason}
}

// WithAmount attaches the amount involved in the rejected operation.
func (e *Error) WithAmount(amount decimal.Decimal) *Error {
	e.Amount = &amount
	return e
}

// StorageError wraps a persistence failure from a repository operation.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: ErrStorage, Op: op, Err: err}
}

// NotFoundAccount is the rejection for an unknown account number.
func NotFoundAccount(op, accountNumber string) error {
	return NewError(ErrNotFound, op, accountNumber, "account does not exist")
}

// NotFoundCustomer is the rejection for an unknown customer id.
func NotFoundCustomer(op, customerID string) error {
	return &Error{Kind: ErrNotFound, Op: op, CustomerID: customerID, Reason: "customer does not exist"}
}
