// Package repository defines the persistence port the ledger depends on.
// Adapters live in repository/inmemory and infra/postgres.
package repository

import (
	"context"
	"time"

	"github.com/dvloznov/teller-ledger/internal/domain"
)

// TransactionFilter narrows a transaction history query.
type TransactionFilter struct {
	// Since and Until bound CreatedAt inclusively when non-zero.
	Since time.Time
	Until time.Time

	// Limit keeps only the most recent Limit entries when positive.
	Limit int
}

// AccountFilter narrows an account listing.
type AccountFilter struct {
	// Limit keeps only the Limit most recently opened accounts when positive.
	Limit int
}

// Queries are the read operations. All returned values are copies.
type Queries interface {
	// FindAccountByNumber loads an account with its owner and full history.
	// Inside a unit of work the account stays locked until commit.
	FindAccountByNumber(ctx context.Context, number string) (*domain.Account, error)

	// FindAccountsByCustomer loads every account owned by the customer.
	FindAccountsByCustomer(ctx context.Context, customerID string) ([]*domain.Account, error)

	// FindAllAccounts loads every account, oldest first. Used by the interest sweep.
	FindAllAccounts(ctx context.Context, filter AccountFilter) ([]*domain.Account, error)

	// FindCustomerByID loads a customer with its owned account numbers.
	FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error)

	// FindAllCustomers loads every customer ordered by registration.
	FindAllCustomers(ctx context.Context) ([]*domain.Customer, error)

	// FindTransactionsByAccount returns the account's ledger in append order.
	FindTransactionsByAccount(ctx context.Context, number string, filter TransactionFilter) ([]domain.Transaction, error)

	// FindTransactionsAfter returns up to limit transactions with ID > afterID in ID order.
	FindTransactionsAfter(ctx context.Context, afterID int64, limit int) ([]domain.Transaction, error)
}

// Tx is a unit of work. Writes become visible only when the enclosing WithinTx returns nil.
type Tx interface {
	Queries

	// NextAccountNumber draws an unused account number from the ID generator.
	NextAccountNumber(ctx context.Context) (string, error)

	// SaveAccount inserts a new account. History is not stored here; use SaveTransaction.
	SaveAccount(ctx context.Context, account *domain.Account) error

	// UpdateAccount stores balance, branch and the last interest timestamp.
	UpdateAccount(ctx context.Context, account *domain.Account) error

	// DeleteAccount removes an account and its ledger.
	DeleteAccount(ctx context.Context, number string) error

	// SaveCustomer inserts a new customer.
	SaveCustomer(ctx context.Context, customer *domain.Customer) error

	// SaveTransaction appends a ledger entry and assigns its sequential ID.
	SaveTransaction(ctx context.Context, tx *domain.Transaction) error
}

// Repository is the port implemented by storage adapters.
type Repository interface {
	Queries

	// WithinTx runs fn in a unit of work; any error from fn rolls everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Close releases adapter resources.
	Close() error
}

// IDGenerator issues account numbers. exists reports whether a candidate is taken.
type IDGenerator interface {
	NewAccountNumber(ctx context.Context, exists func(string) (bool, error)) (string, error)
}
