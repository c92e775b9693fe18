package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dvloznov/teller-ledger/internal/domain"
	"github.com/dvloznov/teller-ledger/internal/repository"
)

// SQLSTATE codes the adapter translates.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// unit is the repository.Tx handed to WithinTx callbacks.
type unit struct {
	reader
	tx  pgx.Tx
	ids repository.IDGenerator
}

func (u *unit) NextAccountNumber(ctx context.Context) (string, error) {
	const op = "NextAccountNumber"
	number, err := u.ids.NewAccountNumber(ctx, func(candidate string) (bool, error) {
		var taken bool
		err := u.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE number = $1)`, candidate).Scan(&taken)
		return taken, err
	})
	if err != nil {
		return "", domain.StorageError(op, err)
	}
	return number, nil
}

func (u *unit) SaveAccount(ctx context.Context, account *domain.Account) error {
	const op = "SaveAccount"
	_, err := u.tx.Exec(ctx, `
		INSERT INTO accounts (number, kind, branch, customer_id, balance, opened_at, last_interest_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)`,
		account.Number(), string(account.Kind()), account.Branch(), account.CustomerID(),
		account.Balance().String(), account.OpenedAt(), account.LastInterestAt(),
	)
	switch {
	case isCode(err, foreignKeyViolation):
		return domain.NotFoundCustomer(op, account.CustomerID())
	case isCode(err, uniqueViolation):
		return domain.StorageError(op, fmt.Errorf("account %s already exists", account.Number()))
	case err != nil:
		return domain.StorageError(op, err)
	}
	return nil
}

func (u *unit) UpdateAccount(ctx context.Context, account *domain.Account) error {
	const op = "UpdateAccount"
	tag, err := u.tx.Exec(ctx, `
		UPDATE accounts
		SET balance = $2::numeric, branch = $3, last_interest_at = $4
		WHERE number = $1`,
		account.Number(), account.Balance().String(), account.Branch(), account.LastInterestAt(),
	)
	if err != nil {
		return domain.StorageError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundAccount(op, account.Number())
	}
	return nil
}

// DeleteAccount removes the account. Its ledger goes with it through ON DELETE CASCADE.
func (u *unit) DeleteAccount(ctx context.Context, number string) error {
	const op = "DeleteAccount"
	tag, err := u.tx.Exec(ctx, `DELETE FROM accounts WHERE number = $1`, number)
	if err != nil {
		return domain.StorageError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundAccount(op, number)
	}
	return nil
}

func (u *unit) SaveCustomer(ctx context.Context, customer *domain.Customer) error {
	const op = "SaveCustomer"
	individual, err := profileJSON(customer.Individual)
	if err != nil {
		return domain.StorageError(op, err)
	}
	organization, err := profileJSON(customer.Organization)
	if err != nil {
		return domain.StorageError(op, err)
	}

	_, err = u.tx.Exec(ctx, `
		INSERT INTO customers (id, kind, address, email, phone, registered_at, individual, organization)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		customer.ID, string(customer.Kind), customer.Address, customer.Email, customer.Phone,
		customer.RegisteredAt, individual, organization,
	)
	if isCode(err, uniqueViolation) {
		return domain.StorageError(op, fmt.Errorf("customer %s already exists", customer.ID))
	}
	return domain.StorageError(op, err)
}

// SaveTransaction inserts the entry and takes its ID from transaction_id_seq.
func (u *unit) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	const op = "SaveTransaction"
	if !tx.Kind.Valid() {
		return domain.StorageError(op, fmt.Errorf("unknown transaction kind %q", tx.Kind))
	}
	err := u.tx.QueryRow(ctx, `
		INSERT INTO transactions (account_number, kind, amount, balance_after, description, created_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6)
		RETURNING id`,
		tx.AccountNumber, string(tx.Kind), tx.Amount.String(), tx.BalanceAfter.String(), tx.Description, tx.CreatedAt,
	).Scan(&tx.ID)
	if isCode(err, foreignKeyViolation) {
		return domain.NotFoundAccount(op, tx.AccountNumber)
	}
	return domain.StorageError(op, err)
}

// profileJSON encodes a customer profile for a JSONB column. A nil profile is SQL NULL.
func profileJSON[P any](profile *P) ([]byte, error) {
	if profile == nil {
		return nil, nil
	}
	return json.Marshal(profile)
}

var _ repository.Tx = (*unit)(nil)
