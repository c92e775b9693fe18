package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/teller-ledger/internal/domain"
	"github.com/dvloznov/teller-ledger/internal/repository"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NUMERIC columns are read as text and parsed with decimal to keep exact cents.
const (
	accountColumns     = `number, kind, branch, customer_id, balance::text, opened_at, last_interest_at`
	customerColumns    = `id, kind, address, email, phone, registered_at, individual, organization`
	transactionColumns = `id, account_number, kind, amount::text, balance_after::text, description, created_at`
)

// reader implements repository.Queries over a pool or a transaction.
type reader struct {
	q         querier
	forUpdate bool
}

func (r reader) FindAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	const op = "FindAccountByNumber"
	sql := `SELECT ` + accountColumns + ` FROM accounts WHERE number = $1`
	if r.forUpdate {
		sql += ` FOR UPDATE`
	}
	accounts, err := r.accounts(ctx, op, sql, number)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, domain.NotFoundAccount(op, number)
	}
	return accounts[0], nil
}

func (r reader) FindAccountsByCustomer(ctx context.Context, customerID string) ([]*domain.Account, error) {
	const op = "FindAccountsByCustomer"
	if err := r.customerExists(ctx, op, customerID); err != nil {
		return nil, err
	}
	return r.accounts(ctx, op, `SELECT `+accountColumns+` FROM accounts WHERE customer_id = $1 ORDER BY seq`, customerID)
}

func (r reader) FindAllAccounts(ctx context.Context, filter repository.AccountFilter) ([]*domain.Account, error) {
	const op = "FindAllAccounts"
	if filter.Limit > 0 {
		return r.accounts(ctx, op, `
			SELECT `+accountColumns+` FROM (
				SELECT * FROM accounts ORDER BY opened_at DESC, seq DESC LIMIT $1
			) recent
			ORDER BY opened_at, seq`, filter.Limit)
	}
	return r.accounts(ctx, op, `SELECT `+accountColumns+` FROM accounts ORDER BY opened_at, seq`)
}

func (r reader) FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	const op = "FindCustomerByID"
	customers, err := r.customers(ctx, op, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return nil, domain.NotFoundCustomer(op, id)
	}
	return customers[0], nil
}

func (r reader) FindAllCustomers(ctx context.Context) ([]*domain.Customer, error) {
	return r.customers(ctx, "FindAllCustomers", `SELECT `+customerColumns+` FROM customers ORDER BY registered_at, id`)
}

func (r reader) FindTransactionsByAccount(ctx context.Context, number string, filter repository.TransactionFilter) ([]domain.Transaction, error) {
	const op = "FindTransactionsByAccount"
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE number = $1)`, number).Scan(&exists); err != nil {
		return nil, domain.StorageError(op, err)
	}
	if !exists {
		return nil, domain.NotFoundAccount(op, number)
	}

	where := []string{"account_number = $1"}
	args := []any{number}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	sql := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + strings.Join(where, " AND ")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql = fmt.Sprintf(`SELECT * FROM (%s ORDER BY id DESC LIMIT $%d) recent`, sql, len(args))
	}
	return r.transactions(ctx, op, sql+` ORDER BY id`, args...)
}

func (r reader) FindTransactionsAfter(ctx context.Context, afterID int64, limit int) ([]domain.Transaction, error) {
	const op = "FindTransactionsAfter"
	sql := `SELECT ` + transactionColumns + ` FROM transactions WHERE id > $1 ORDER BY id`
	args := []any{afterID}
	if limit > 0 {
		sql += ` LIMIT $2`
		args = append(args, limit)
	}
	return r.transactions(ctx, op, sql, args...)
}

// accounts runs an account query and attaches owners and histories.
func (r reader) accounts(ctx context.Context, op, sql string, args ...any) ([]*domain.Account, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, domain.StorageError(op, err)
	}
	states, err := pgx.CollectRows(rows, scanAccountState)
	if err != nil {
		return nil, domain.StorageError(op, err)
	}
	if len(states) == 0 {
		return nil, nil
	}

	numbers := make([]string, 0, len(states))
	ownerIDs := make([]string, 0, len(states))
	for _, s := range states {
		numbers = append(numbers, s.Number)
		ownerIDs = append(ownerIDs, s.CustomerID)
	}
	history, err := r.transactions(ctx, op, `SELECT `+transactionColumns+` FROM transactions WHERE account_number = ANY($1) ORDER BY id`, numbers)
	if err != nil {
		return nil, err
	}
	byAccount := make(map[string][]domain.Transaction, len(states))
	for _, t := range history {
		byAccount[t.AccountNumber] = append(byAccount[t.AccountNumber], t)
	}
	owners, err := r.customers(ctx, op, `SELECT `+customerColumns+` FROM customers WHERE id = ANY($1)`, ownerIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Customer, len(owners))
	for _, c := range owners {
		byID[c.ID] = c
	}

	accounts := make([]*domain.Account, 0, len(states))
	for _, s := range states {
		s.History = byAccount[s.Number]
		var owner *domain.Customer
		if c, ok := byID[s.CustomerID]; ok {
			owner = c.Clone()
		}
		a, err := domain.RehydrateAccount(s, owner)
		if err != nil {
			return nil, domain.StorageError(op, err)
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// customers runs a customer query and attaches owned account numbers.
func (r reader) customers(ctx context.Context, op, sql string, args ...any) ([]*domain.Customer, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, domain.StorageError(op, err)
	}
	customers, err := pgx.CollectRows(rows, scanCustomer)
	if err != nil {
		return nil, domain.StorageError(op, err)
	}
	if len(customers) == 0 {
		return customers, nil
	}

	ids := make([]string, 0, len(customers))
	byID := make(map[string]*domain.Customer, len(customers))
	for _, c := range customers {
		ids = append(ids, c.ID)
		byID[c.ID] = c
	}
	owned, err := r.q.Query(ctx, `SELECT customer_id, number FROM accounts WHERE customer_id = ANY($1) ORDER BY seq`, ids)
	if err != nil {
		return nil, domain.StorageError(op, err)
	}
	var customerID, number string
	_, err = pgx.ForEachRow(owned, []any{&customerID, &number}, func() error {
		byID[customerID].AttachAccount(number)
		return nil
	})
	if err != nil {
		return nil, domain.StorageError(op, err)
	}
	return customers, nil
}

func (r reader) transactions(ctx context.Context, op, sql string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, domain.StorageError(op, err)
	}
	txs, err := pgx.CollectRows(rows, scanTransaction)
	if err != nil {
		return nil, domain.StorageError(op, err)
	}
	return txs, nil
}

func (r reader) customerExists(ctx context.Context, op, id string) error {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, id).Scan(&exists); err != nil {
		return domain.StorageError(op, err)
	}
	if !exists {
		return domain.NotFoundCustomer(op, id)
	}
	return nil
}

func scanAccountState(row pgx.CollectableRow) (domain.AccountState, error) {
	var (
		s       domain.AccountState
		kind    string
		balance string
	)
	if err := row.Scan(&s.Number, &kind, &s.Branch, &s.CustomerID, &balance, &s.OpenedAt, &s.LastInterestAt); err != nil {
		return s, err
	}
	s.Kind = domain.AccountKind(kind)
	var err error
	if s.Balance, err = decimal.NewFromString(balance); err != nil {
		return s, fmt.Errorf("account %s: balance %q: %w", s.Number, balance, err)
	}
	s.OpenedAt = s.OpenedAt.UTC()
	if s.LastInterestAt != nil {
		at := s.LastInterestAt.UTC()
		s.LastInterestAt = &at
	}
	return s, nil
}

func scanCustomer(row pgx.CollectableRow) (*domain.Customer, error) {
	var (
		c                        domain.Customer
		kind                     string
		individual, organization []byte
	)
	if err := row.Scan(&c.ID, &kind, &c.Address, &c.Email, &c.Phone, &c.RegisteredAt, &individual, &organization); err != nil {
		return nil, err
	}
	c.Kind = domain.CustomerKind(kind)
	c.RegisteredAt = c.RegisteredAt.UTC()
	if individual != nil {
		c.Individual = &domain.IndividualProfile{}
		if err := json.Unmarshal(individual, c.Individual); err != nil {
			return nil, fmt.Errorf("customer %s: individual profile: %w", c.ID, err)
		}
	}
	if organization != nil {
		c.Organization = &domain.OrganizationProfile{}
		if err := json.Unmarshal(organization, c.Organization); err != nil {
			return nil, fmt.Errorf("customer %s: organization profile: %w", c.ID, err)
		}
	}
	return &c, nil
}

func scanTransaction(row pgx.CollectableRow) (domain.Transaction, error) {
	var (
		t                    domain.Transaction
		kind                 string
		amount, balanceAfter string
	)
	if err := row.Scan(&t.ID, &t.AccountNumber, &kind, &amount, &balanceAfter, &t.Description, &t.CreatedAt); err != nil {
		return t, err
	}
	t.Kind = domain.TransactionKind(kind)
	t.CreatedAt = t.CreatedAt.UTC()
	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return t, fmt.Errorf("transaction %d: amount %q: %w", t.ID, amount, err)
	}
	if t.BalanceAfter, err = decimal.NewFromString(balanceAfter); err != nil {
		return t, fmt.Errorf("transaction %d: balance_after %q: %w", t.ID, balanceAfter, err)
	}
	return t, nil
}

// isCode reports whether err is a PostgreSQL error with the given SQLSTATE.
func isCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
