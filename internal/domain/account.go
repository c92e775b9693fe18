package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultDepositDescription    = "Cash deposit"
	defaultWithdrawalDescription = "Cash withdrawal"
	// InterestDescription labels every interest entry.
	InterestDescription = "Monthly Interest"
)

// AccountState is the storable shape of an account.
type AccountState struct {
	Number         string          `json:"number"`
	Kind           AccountKind     `json:"kind"`
	Branch         string          `json:"branch"`
	CustomerID     string          `json:"customer_id"`
	Balance        decimal.Decimal `json:"balance"`
	OpenedAt       time.Time       `json:"opened_at"`
	LastInterestAt *time.Time      `json:"last_interest_at,omitempty"`
	History        []Transaction   `json:"history,omitempty"`
}

// Account holds a balance and its ledger. It never persists itself.
// owner is a back-reference for eligibility and the interest anchor; the account does not own it.
type Account struct {
	state  AccountState
	policy Policy
	owner  *Customer
}

// NewAccount opens an account with a number drawn from the repository.
// A positive initialDeposit is recorded as the first INITIAL_DEPOSIT entry.
func NewAccount(number string, kind AccountKind, branch string, owner *Customer, initialDeposit decimal.Decimal, description string, now time.Time) (*Account, error) {
	const op = "NewAccount"
	if strings.TrimSpace(number) == "" {
		return nil, &Error{Kind: ErrValidation, Op: op, Reason: "account number is required"}
	}
	if err := CheckOpening(kind, owner, initialDeposit); err != nil {
		return nil, err
	}
	policy, _ := PolicyFor(kind)
	a := &Account{
		state: AccountState{
			Number:     number,
			Kind:       kind,
			Branch:     branch,
			CustomerID: owner.ID,
			Balance:    decimal.Zero,
			OpenedAt:   now,
		},
		policy: policy,
		owner:  owner,
	}
	if initialDeposit.IsPositive() {
		if description == "" {
			description = "Account opening deposit"
		}
		a.credit(TransactionInitialDeposit, RoundMoney(initialDeposit), description, now)
	}
	return a, nil
}

// RehydrateAccount rebuilds an account from storage without emitting transactions.
func RehydrateAccount(state AccountState, owner *Customer) (*Account, error) {
	const op = "RehydrateAccount"
	policy, ok := PolicyFor(state.Kind)
	if !ok {
		return nil, &Error{Kind: ErrValidation, Op: op, AccountNumber: state.Number, Reason: "unknown account type " + string(state.Kind)}
	}
	if state.Balance.IsNegative() {
		return nil, &Error{Kind: ErrValidation, Op: op, AccountNumber: state.Number, Reason: "stored balance is negative"}
	}
	if owner != nil && owner.ID != state.CustomerID {
		return nil, &Error{Kind: ErrValidation, Op: op, AccountNumber: state.Number, Reason: "owner does not match customer id"}
	}
	state.History = slices.Clone(state.History)
	if state.LastInterestAt != nil {
		t := *state.LastInterestAt
		state.LastInterestAt = &t
	}
	return &Account{state: state, policy: policy, owner: owner}, nil
}

func (a *Account) Number() string           { return a.state.Number }
func (a *Account) Kind() AccountKind        { return a.state.Kind }
func (a *Account) Branch() string           { return a.state.Branch }
func (a *Account) CustomerID() string       { return a.state.CustomerID }
func (a *Account) Balance() decimal.Decimal { return a.state.Balance }
func (a *Account) OpenedAt() time.Time      { return a.state.OpenedAt }
func (a *Account) Policy() Policy           { return a.policy }
func (a *Account) Owner() *Customer         { return a.owner }

// LastInterestAt returns the last accrual time, or nil if interest was never applied.
func (a *Account) LastInterestAt() *time.Time {
	if a.state.LastInterestAt == nil {
		return nil
	}
	t := *a.state.LastInterestAt
	return &t
}

// History returns a copy of the ledger in append order.
func (a *Account) History() []Transaction {
	return slices.Clone(a.state.History)
}

// State returns a copy of the storable fields.
func (a *Account) State() AccountState {
	s := a.state
	s.History = slices.Clone(a.state.History)
	s.LastInterestAt = a.LastInterestAt()
	return s
}

// Clone returns an independent copy sharing only the owner reference.
func (a *Account) Clone() *Account {
	return &Account{state: a.State(), policy: a.policy, owner: a.owner}
}

// AttachOwner sets the owner back-reference after loading.
func (a *Account) AttachOwner(owner *Customer) error {
	if owner != nil && owner.ID != a.state.CustomerID {
		return &Error{Kind: ErrValidation, Op: "Account.AttachOwner", AccountNumber: a.state.Number, Reason: "owner does not match customer id"}
	}
	a.owner = owner
	return nil
}

// Deposit credits amount. An empty description defaults to "Cash deposit".
// Amounts are rounded to cents first; one that rounds to 0.00 is rejected.
func (a *Account) Deposit(amount decimal.Decimal, description string, now time.Time) (Transaction, error) {
	rounded := RoundMoney(amount)
	if !rounded.IsPositive() {
		return Transaction{}, (&Error{Kind: ErrInvalidAmount, Op: "Account.Deposit", AccountNumber: a.state.Number}).WithAmount(amount)
	}
	if description == "" {
		description = defaultDepositDescription
	}
	return a.credit(TransactionDeposit, rounded, description, now), nil
}

// Withdraw debits amount if the kind allows withdrawals and the balance covers it.
func (a *Account) Withdraw(amount decimal.Decimal, description string, now time.Time) (Transaction, error) {
	const op = "Account.Withdraw"
	if !a.policy.Withdrawable {
		return Transaction{}, (&Error{
			Kind:          ErrUnsupportedOperation,
			Op:            op,
			AccountNumber: a.state.Number,
			Reason:        "withdrawals are not allowed for " + string(a.state.Kind) + " accounts",
		}).WithAmount(amount)
	}
	if !RoundMoney(amount).IsPositive() {
		return Transaction{}, (&Error{Kind: ErrInvalidAmount, Op: op, AccountNumber: a.state.Number}).WithAmount(amount)
	}
	amount = RoundMoney(amount)
	if amount.GreaterThan(a.state.Balance) {
		return Transaction{}, (&Error{
			Kind:          ErrInsufficientFunds,
			Op:            op,
			AccountNumber: a.state.Number,
			Reason:        "balance is " + a.state.Balance.StringFixed(2),
		}).WithAmount(amount)
	}
	if description == "" {
		description = defaultWithdrawalDescription
	}
	a.state.Balance = a.state.Balance.Sub(amount)
	tx := a.record(TransactionWithdrawal, amount, description, now)
	return tx, nil
}

// InterestResult describes one ApplyInterestIfDue call.
type InterestResult struct {
	Applied     bool
	Months      int
	Amount      decimal.Decimal
	Transaction *Transaction
}

// InterestAnchor is the point accrual is measured from: the last accrual,
// else the owner's registration, else the opening time.
func (a *Account) InterestAnchor() time.Time {
	if a.state.LastInterestAt != nil {
		return *a.state.LastInterestAt
	}
	if a.owner != nil && !a.owner.RegisteredAt.IsZero() {
		return a.owner.RegisteredAt
	}
	return a.state.OpenedAt
}

// ApplyInterestIfDue applies simple interest for every whole calendar month elapsed since the anchor.
// Within the same month as the anchor it is a no-op. Interest that rounds to 0.00 on a positive
// balance leaves the anchor in place, so the months keep counting until a cent is due.
func (a *Account) ApplyInterestIfDue(asOf time.Time) (InterestResult, error) {
	if !a.policy.InterestBearing() {
		return InterestResult{}, &Error{
			Kind:          ErrUnsupportedOperation,
			Op:            "Account.ApplyInterestIfDue",
			AccountNumber: a.state.Number,
			Reason:        string(a.state.Kind) + " accounts do not accrue interest",
		}
	}
	months := MonthsBetween(a.InterestAnchor(), asOf)
	if months <= 0 {
		return InterestResult{Months: months}, nil
	}
	interest := RoundMoney(a.state.Balance.Mul(a.policy.MonthlyRate).Mul(decimal.NewFromInt(int64(months))))
	if !interest.IsPositive() && a.state.Balance.IsPositive() {
		return InterestResult{Months: months}, nil
	}
	res := InterestResult{Applied: true, Months: months, Amount: interest}
	if interest.IsPositive() {
		tx := a.credit(TransactionInterest, interest, InterestDescription, asOf)
		res.Transaction = &tx
	}
	applied := asOf
	a.state.LastInterestAt = &applied
	return res, nil
}

// VerifyHistory replays the ledger and checks it against the balance and the balance-after chain.
func (a *Account) VerifyHistory() error {
	running := decimal.Zero
	for i, tx := range a.state.History {
		if !tx.Amount.IsPositive() {
			return a.mismatch(fmt.Sprintf("entry %d (id %d) has non-positive amount %s", i, tx.ID, tx.Amount.StringFixed(2)))
		}
		running = running.Add(tx.Delta())
		if !running.Equal(tx.BalanceAfter) {
			return a.mismatch(fmt.Sprintf("entry %d (id %d) records balance %s, replay gives %s", i, tx.ID, tx.BalanceAfter.StringFixed(2), running.StringFixed(2)))
		}
	}
	if !running.Equal(a.state.Balance) {
		return a.mismatch(fmt.Sprintf("balance is %s, history sums to %s", a.state.Balance.StringFixed(2), running.StringFixed(2)))
	}
	return nil
}

func (a *Account) mismatch(reason string) error {
	return &Error{Kind: ErrLedgerMismatch, Op: "Account.VerifyHistory", AccountNumber: a.state.Number, Reason: reason}
}

func (a *Account) credit(kind TransactionKind, amount decimal.Decimal, description string, now time.Time) Transaction {
	a.state.Balance = a.state.Balance.Add(amount)
	return a.record(kind, amount, description, now)
}

func (a *Account) record(kind TransactionKind, amount decimal.Decimal, description string, now time.Time) Transaction {
	tx := Transaction{
		AccountNumber: a.state.Number,
		Kind:          kind,
		Amount:        amount,
		BalanceAfter:  a.state.Balance,
		Description:   description,
		CreatedAt:     now,
	}
	a.state.History = append(a.state.History, tx)
	return tx
}

// MonthsBetween counts calendar month boundaries from from to to, ignoring the day of month.
// Both times are compared in to's location.
func MonthsBetween(from, to time.Time) int {
	from = from.In(to.Location())
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}
