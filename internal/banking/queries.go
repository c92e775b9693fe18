package banking

import (
	"context"
	"slices"

	"github.com/dvloznov/teller-ledger/internal/domain"
	"github.com/dvloznov/teller-ledger/internal/repository"
)

// GetBalance returns the committed balance of an account.
func (s *Service) GetBalance(ctx context.Context, accountNumber string) (Balance, error) {
	account, err := s.repo.FindAccountByNumber(ctx, accountNumber)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		AccountNumber: account.Number(),
		Kind:          account.Kind(),
		Amount:        account.Balance(),
		AsOf:          s.now(),
	}, nil
}

// GetAccount returns an account with its owner and history.
func (s *Service) GetAccount(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return s.repo.FindAccountByNumber(ctx, accountNumber)
}

// GetTransactions returns the ledger of an account, oldest first, narrowed by filter.
func (s *Service) GetTransactions(ctx context.Context, accountNumber string, filter repository.TransactionFilter) ([]domain.Transaction, error) {
	const op = "GetTransactions"
	if filter.Limit < 0 {
		return nil, &domain.Error{Kind: domain.ErrValidation, Op: op, AccountNumber: accountNumber, Reason: "limit cannot be negative"}
	}
	if !filter.Since.IsZero() && !filter.Until.IsZero() && filter.Until.Before(filter.Since) {
		return nil, &domain.Error{Kind: domain.ErrValidation, Op: op, AccountNumber: accountNumber, Reason: "until is before since"}
	}
	return s.repo.FindTransactionsByAccount(ctx, accountNumber, filter)
}

// GetRecentTransactions returns the last limit entries, newest first.
func (s *Service) GetRecentTransactions(ctx context.Context, accountNumber string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		return nil, &domain.Error{Kind: domain.ErrValidation, Op: "GetRecentTransactions", AccountNumber: accountNumber, Reason: "limit must be positive"}
	}
	txs, err := s.repo.FindTransactionsByAccount(ctx, accountNumber, repository.TransactionFilter{Limit: limit})
	if err != nil {
		return nil, err
	}
	slices.Reverse(txs)
	return txs, nil
}

// GetCustomer returns a registered customer.
func (s *Service) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	return s.repo.FindCustomerByID(ctx, customerID)
}

// GetCustomerAccounts returns every account the customer owns.
func (s *Service) GetCustomerAccounts(ctx context.Context, customerID string) ([]*domain.Account, error) {
	return s.repo.FindAccountsByCustomer(ctx, customerID)
}

// ListCustomers returns every customer in registration order.
func (s *Service) ListCustomers(ctx context.Context) ([]*domain.Customer, error) {
	return s.repo.FindAllCustomers(ctx)
}

// ListAccounts returns the limit most recently opened accounts, newest first. limit <= 0 returns all.
func (s *Service) ListAccounts(ctx context.Context, limit int) ([]*domain.Account, error) {
	accounts, err := s.repo.FindAllAccounts(ctx, repository.AccountFilter{Limit: limit})
	if err != nil {
		return nil, err
	}
	slices.Reverse(accounts)
	return accounts, nil
}

// VerifyAccount replays the account's ledger against its stored balance.
func (s *Service) VerifyAccount(ctx context.Context, accountNumber string) error {
	account, err := s.repo.FindAccountByNumber(ctx, accountNumber)
	if err != nil {
		return err
	}
	if err := account.VerifyHistory(); err != nil {
		s.logFor(ctx).Error().Err(err).Str("account_number", accountNumber).Msg("Ledger verification failed")
		return err
	}
	return nil
}
