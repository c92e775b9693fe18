package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AccountKind is fixed for the lifetime of an account.
type AccountKind string

const (
	AccountSavings    AccountKind = "SAVINGS"
	AccountCheque     AccountKind = "CHEQUE"
	AccountInvestment AccountKind = "INVESTMENT"
)

// Policy is the capability table entry for one account kind.
type Policy struct {
	Withdrawable bool
	// MonthlyRate is zero for kinds that do not accrue interest.
	MonthlyRate           decimal.Decimal
	MinimumOpeningDeposit decimal.Decimal
	// RequiresVerifiedIncome restricts the kind to individuals with verified income.
	RequiresVerifiedIncome bool
}

// InterestBearing reports whether the kind accrues interest.
func (p Policy) InterestBearing() bool {
	return p.MonthlyRate.IsPositive()
}

var policies = map[AccountKind]Policy{
	AccountSavings: {
		Withdrawable:          false,
		MonthlyRate:           decimal.RequireFromString("0.0005"),
		MinimumOpeningDeposit: decimal.RequireFromString("50.00"),
	},
	AccountCheque: {
		Withdrawable:           true,
		MinimumOpeningDeposit:  decimal.Zero,
		RequiresVerifiedIncome: true,
	},
	AccountInvestment: {
		Withdrawable:          true,
		MonthlyRate:           decimal.RequireFromString("0.05"),
		MinimumOpeningDeposit: decimal.RequireFromString("500.00"),
	},
}

// Kinds lists the supported account kinds.
func Kinds() []AccountKind {
	return []AccountKind{AccountSavings, AccountCheque, AccountInvestment}
}

// PolicyFor returns the capability table entry for k.
func PolicyFor(k AccountKind) (Policy, bool) {
	p, ok := policies[k]
	return p, ok
}

// ParseAccountKind accepts kinds case-insensitively ("savings", "Cheque", ...).
func ParseAccountKind(s string) (AccountKind, error) {
	k := AccountKind(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := policies[k]; !ok {
		return "", &Error{Kind: ErrValidation, Op: "ParseAccountKind", Reason: "unknown account type " + s}
	}
	return k, nil
}

// CheckOpening validates an opening request against the kind's policy.
// Deposit rules are checked first so that eligibility is only evaluated for well-formed requests.
func CheckOpening(k AccountKind, owner *Customer, initialDeposit decimal.Decimal) error {
	const op = "CheckOpening"
	p, ok := policies[k]
	if !ok {
		return &Error{Kind: ErrValidation, Op: op, Reason: "unknown account type " + string(k)}
	}
	if initialDeposit.IsPositive() && !RoundMoney(initialDeposit).IsPositive() {
		return (&Error{Kind: ErrInvalidAmount, Op: op, Reason: "initial deposit rounds to 0.00"}).WithAmount(initialDeposit)
	}
	if initialDeposit.IsNegative() || initialDeposit.LessThan(p.MinimumOpeningDeposit) {
		return (&Error{
			Kind:   ErrValidation,
			Op:     op,
			Reason: "initial deposit below minimum " + p.MinimumOpeningDeposit.StringFixed(2) + " for " + string(k),
		}).WithAmount(initialDeposit)
	}
	if owner == nil {
		return &Error{Kind: ErrValidation, Op: op, Reason: "account owner is required"}
	}
	if p.RequiresVerifiedIncome {
		if owner.Kind != CustomerIndividual {
			return &Error{Kind: ErrIneligibleCustomer, Op: op, CustomerID: owner.ID, Reason: string(k) + " accounts are only available to individual customers"}
		}
		if !owner.HasVerifiedIncome() {
			return &Error{Kind: ErrIneligibleCustomer, Op: op, CustomerID: owner.ID, Reason: string(k) + " account requires verified income"}
		}
	}
	return nil
}
