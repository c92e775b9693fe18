// Package banking is the transactional boundary of the ledger. Every balance change goes
// through Service, which runs it under a per-account lock inside one repository unit of work.
package banking

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dvloznov/teller-ledger/internal/domain"
	"github.com/dvloznov/teller-ledger/internal/logger"
	"github.com/dvloznov/teller-ledger/internal/repository"
)

const tracerName = "github.com/dvloznov/teller-ledger/internal/banking"

// Service orchestrates customers, accounts and ledger entries.
type Service struct {
	repo   repository.Repository
	log    zerolog.Logger
	now    func() time.Time
	locks  *keyedMutex
	tracer trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the base logger. A logger stored in the request context takes precedence.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(tracerName) }
}

// NewService creates a Service on top of repo.
func NewService(repo repository.Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		log:    zerolog.Nop(),
		now:    time.Now,
		locks:  newKeyedMutex(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterCustomer validates and stores a new customer. A duplicate identification number is a validation error.
func (s *Service) RegisterCustomer(ctx context.Context, customer *domain.Customer) (_ *domain.Customer, err error) {
	const op = "RegisterCustomer"
	ctx, span := s.startSpan(ctx, op)
	defer func() { s.finish(ctx, span, op, err) }()

	if customer == nil {
		return nil, &domain.Error{Kind: domain.ErrValidation, Op: op, Reason: "customer is required"}
	}
	c := customer.Clone()
	if c.RegisteredAt.IsZero() {
		c.RegisteredAt = s.now()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("customer.id", c.ID))

	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.FindCustomerByID(ctx, c.ID)
		switch {
		case err == nil:
			return &domain.Error{Kind: domain.ErrValidation, Op: op, CustomerID: c.ID, Reason: "identification number is already registered"}
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		return tx.SaveCustomer(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	s.logFor(ctx).Info().
		Str("customer_id", c.ID).
		Str("customer_kind", string(c.Kind)).
		Msg("Customer registered")
	return c, nil
}

// OpenAccount opens an account for an existing customer. The opening deposit is recorded with the teller's name.
func (s *Service) OpenAccount(ctx context.Context, req OpenAccountRequest) (_ *domain.Account, err error) {
	const op = "OpenAccount"
	ctx, span := s.startSpan(ctx, op,
		attribute.String("customer.id", req.CustomerID),
		attribute.String("account.kind", string(req.Kind)),
	)
	defer func() { s.finish(ctx, span, op, err) }()

	if err := req.Teller.validate(op); err != nil {
		return nil, err
	}
	if _, ok := domain.PolicyFor(req.Kind); !ok {
		return nil, &domain.Error{Kind: domain.ErrValidation, Op: op, CustomerID: req.CustomerID, Reason: "unknown account type " + string(req.Kind)}
	}
	branch := req.Branch
	if branch == "" {
		branch = req.Teller.Branch
	}
	if branch == "" {
		return nil, &domain.Error{Kind: domain.ErrValidation, Op: op, CustomerID: req.CustomerID, Reason: "branch is required"}
	}

	var opened *domain.Account
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		owner, err := tx.FindCustomerByID(ctx, req.CustomerID)
		if err != nil {
			return err
		}
		if err := domain.CheckOpening(req.Kind, owner, req.InitialDeposit); err != nil {
			return err
		}
		number, err := tx.NextAccountNumber(ctx)
		if err != nil {
			return err
		}
		description := "Account opening deposit by: " + req.Teller.FullName()
		account, err := domain.NewAccount(number, req.Kind, branch, owner, req.InitialDeposit, description, s.now())
		if err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}
		for _, entry := range account.History() {
			if err := tx.SaveTransaction(ctx, &entry); err != nil {
				return err
			}
		}
		opened, err = tx.FindAccountByNumber(ctx, number)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logFor(ctx).Info().
		Str("account_number", opened.Number()).
		Str("account_kind", string(opened.Kind())).
		Str("customer_id", req.CustomerID).
		Str("teller_id", req.Teller.ID).
		Str("branch", branch).
		Str("amount", opened.Balance().StringFixed(2)).
		Msg("Account opened")
	return opened, nil
}

// Deposit credits an account. An empty description defaults to "Cash deposit".
func (s *Service) Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (domain.Transaction, error) {
	return s.post(ctx, "Deposit", accountNumber, amount, func(a *domain.Account) (domain.Transaction, error) {
		return a.Deposit(amount, description, s.now())
	})
}

// Withdraw debits an account. Savings accounts always refuse.
func (s *Service) Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (domain.Transaction, error) {
	return s.post(ctx, "Withdraw", accountNumber, amount, func(a *domain.Account) (domain.Transaction, error) {
		return a.Withdraw(amount, description, s.now())
	})
}

// post runs one single-entry mutation under the account lock.
func (s *Service) post(ctx context.Context, op, accountNumber string, amount decimal.Decimal, mutate func(*domain.Account) (domain.Transaction, error)) (_ domain.Transaction, err error) {
	ctx, span := s.startSpan(ctx, op, attribute.String("account.number", accountNumber), attribute.String("amount", amount.String()))
	defer func() { s.finish(ctx, span, op, err) }()

	unlock := s.locks.Lock(accountNumber)
	defer unlock()

	var entry domain.Transaction
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		account, err := tx.FindAccountByNumber(ctx, accountNumber)
		if err != nil {
			return err
		}
		entry, err = mutate(account)
		if err != nil {
			return err
		}
		if err := tx.UpdateAccount(ctx, account); err != nil {
			return err
		}
		return tx.SaveTransaction(ctx, &entry)
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logFor(ctx).Info().
		Str("account_number", accountNumber).
		Str("kind", string(entry.Kind)).
		Str("amount", entry.Amount.StringFixed(2)).
		Str("balance_after", entry.BalanceAfter.StringFixed(2)).
		Int64("transaction_id", entry.ID).
		Msg("Transaction recorded")
	return entry, nil
}

// Transfer withdraws from req.From and deposits into req.To atomically.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (_ TransferResult, err error) {
	const op = "Transfer"
	ctx, span := s.startSpan(ctx, op,
		attribute.String("account.from", req.From),
		attribute.String("account.to", req.To),
		attribute.String("amount", req.Amount.String()),
	)
	defer func() { s.finish(ctx, span, op, err) }()

	if req.From == req.To {
		return TransferResult{}, &domain.Error{Kind: domain.ErrValidation, Op: op, AccountNumber: req.From, Reason: "cannot transfer to the same account"}
	}
	if !domain.RoundMoney(req.Amount).IsPositive() {
		return TransferResult{}, (&domain.Error{Kind: domain.ErrInvalidAmount, Op: op, AccountNumber: req.From}).WithAmount(req.Amount)
	}
	outDesc, inDesc := req.Description, req.Description
	if req.Description == "" {
		outDesc = "Transfer to " + req.To
		inDesc = "Transfer from " + req.From
	}

	unlock := s.locks.Lock(req.From, req.To)
	defer unlock()

	var res TransferResult
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		// Rows are loaded in account-number order so database row locks follow the same order as s.locks.
		loaded := make(map[string]*domain.Account, 2)
		for _, number := range sortedPair(req.From, req.To) {
			a, err := tx.FindAccountByNumber(ctx, number)
			if err != nil {
				return err
			}
			loaded[number] = a
		}
		src, dst := loaded[req.From], loaded[req.To]
		now := s.now()
		if res.Withdrawal, err = src.Withdraw(req.Amount, outDesc, now); err != nil {
			return err
		}
		if res.Deposit, err = dst.Deposit(req.Amount, inDesc, now); err != nil {
			return err
		}
		for _, a := range []*domain.Account{src, dst} {
			if err := tx.UpdateAccount(ctx, a); err != nil {
				return err
			}
		}
		if err := tx.SaveTransaction(ctx, &res.Withdrawal); err != nil {
			return err
		}
		return tx.SaveTransaction(ctx, &res.Deposit)
	})
	if err != nil {
		return TransferResult{}, err
	}

	s.logFor(ctx).Info().
		Str("from_account", req.From).
		Str("to_account", req.To).
		Str("amount", res.Withdrawal.Amount.StringFixed(2)).
		Msg("Transfer completed")
	return res, nil
}

// ApplyInterest accrues interest on one account as of asOf. Nothing is written when no whole month elapsed.
func (s *Service) ApplyInterest(ctx context.Context, accountNumber string, asOf time.Time) (_ domain.InterestResult, err error) {
	const op = "ApplyInterest"
	ctx, span := s.startSpan(ctx, op, attribute.String("account.number", accountNumber))
	defer func() { s.finish(ctx, span, op, err) }()

	unlock := s.locks.Lock(accountNumber)
	defer unlock()

	var res domain.InterestResult
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		account, err := tx.FindAccountByNumber(ctx, accountNumber)
		if err != nil {
			return err
		}
		if res, err = account.ApplyInterestIfDue(asOf); err != nil {
			return err
		}
		if !res.Applied {
			return nil
		}
		if err := tx.UpdateAccount(ctx, account); err != nil {
			return err
		}
		if res.Transaction != nil {
			return tx.SaveTransaction(ctx, res.Transaction)
		}
		return nil
	})
	if err != nil {
		return domain.InterestResult{}, err
	}

	span.SetAttributes(attribute.Int("interest.months", res.Months), attribute.Bool("interest.applied", res.Applied))
	if res.Applied {
		s.logFor(ctx).Info().
			Str("account_number", accountNumber).
			Int("months", res.Months).
			Str("amount", res.Amount.StringFixed(2)).
			Msg("Interest applied")
	}
	return res, nil
}

// CloseAccount deletes an account whose balance is zero.
func (s *Service) CloseAccount(ctx context.Context, accountNumber string) (err error) {
	const op = "CloseAccount"
	ctx, span := s.startSpan(ctx, op, attribute.String("account.number", accountNumber))
	defer func() { s.finish(ctx, span, op, err) }()

	unlock := s.locks.Lock(accountNumber)
	defer unlock()

	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		account, err := tx.FindAccountByNumber(ctx, accountNumber)
		if err != nil {
			return err
		}
		if !account.Balance().IsZero() {
			return (&domain.Error{Kind: domain.ErrValidation, Op: op, AccountNumber: accountNumber, Reason: "balance must be zero to close the account"}).WithAmount(account.Balance())
		}
		return tx.DeleteAccount(ctx, accountNumber)
	})
	if err != nil {
		return err
	}

	s.logFor(ctx).Info().Str("account_number", accountNumber).Msg("Account closed")
	return nil
}

func (s *Service) logFor(ctx context.Context) *zerolog.Logger {
	if l, ok := ctx.Value(logger.LoggerKey).(zerolog.Logger); ok {
		return &l
	}
	return &s.log
}

func (s *Service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "banking."+op, trace.WithAttributes(attrs...))
}

// finish ends the span and logs the failure. Rejections log at warn, storage failures at error.
func (s *Service) finish(ctx context.Context, span trace.Span, op string, err error) {
	defer span.End()
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	ev := s.logFor(ctx).Warn()
	if errors.Is(err, domain.ErrStorage) || errors.Is(err, domain.ErrLedgerMismatch) {
		ev = s.logFor(ctx).Error()
	}
	ev.Err(err).Str("op", op).Msg("Operation failed")
}
