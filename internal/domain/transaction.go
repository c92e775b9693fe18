package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind classifies a ledger entry.
type TransactionKind string

const (
	TransactionDeposit        TransactionKind = "DEPOSIT"
	TransactionWithdrawal     TransactionKind = "WITHDRAWAL"
	TransactionInterest       TransactionKind = "INTEREST"
	TransactionInitialDeposit TransactionKind = "INITIAL_DEPOSIT"
)

// Valid reports whether k is a known transaction kind.
func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionDeposit, TransactionWithdrawal, TransactionInterest, TransactionInitialDeposit:
		return true
	}
	return false
}

// Credit reports whether entries of this kind add to the balance.
func (k TransactionKind) Credit() bool {
	return k != TransactionWithdrawal
}

// Transaction is one immutable ledger entry.
// ID is zero until the repository assigns it on save.
type Transaction struct {
	ID            int64           `json:"id"`
	AccountNumber string          `json:"account_number"`
	Kind          TransactionKind `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`         // always positive
	BalanceAfter  decimal.Decimal `json:"balance_after"`  // snapshot after applying Amount
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Delta returns the signed effect of the entry on the balance.
func (t Transaction) Delta() decimal.Decimal {
	if t.Kind.Credit() {
		return t.Amount
	}
	return t.Amount.Neg()
}

// SumDeltas replays a history and returns the balance it implies.
func SumDeltas(history []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range history {
		total = total.Add(tx.Delta())
	}
	return total
}

// Money helpers. Amounts are kept at cent precision.
const moneyPlaces = 2

// RoundMoney rounds an amount to cents, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// ParseMoney parses a decimal amount such as "500.00".
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &Error{Kind: ErrValidation, Op: "ParseMoney", Reason: "malformed amount " + s}
	}
	return d, nil
}

// MustMoney parses a constant amount and panics on failure. Intended for tables and tests.
func MustMoney(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
