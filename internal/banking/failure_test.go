package banking

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/teller-ledger/internal/domain"
	"github.com/dvloznov/teller-ledger/internal/repository"
	"github.com/dvloznov/teller-ledger/internal/repository/inmemory"
)

// flakyRepo wraps a real store and fails SaveTransaction while failSave is set.
type flakyRepo struct {
	*inmemory.Store
	failSave bool
}

type flakyTx struct {
	repository.Tx
	fail bool
}

func (r *flakyRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return r.Store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, &flakyTx{Tx: tx, fail: r.failSave})
	})
}

func (t *flakyTx) SaveTransaction(ctx context.Context, txn *domain.Transaction) error {
	if t.fail {
		return domain.StorageError("SaveTransaction", errors.New("disk full"))
	}
	return t.Tx.SaveTransaction(ctx, txn)
}

func TestService_StorageFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	repo := &flakyRepo{Store: f.store}
	f.svc = NewService(repo, WithClock(f.clock.Now))

	c := f.individual(t, "IND-1", true)
	src := f.open(t, c.ID, domain.AccountInvestment, "800")
	dst := f.open(t, c.ID, domain.AccountCheque, "0")

	repo.failSave = true
	ctx := context.Background()

	if _, err := f.svc.Deposit(ctx, dst.Number(), money("10"), ""); !errors.Is(err, domain.ErrStorage) {
		t.Errorf("Deposit error = %v, want ErrStorage", err)
	}
	if _, err := f.svc.Transfer(ctx, TransferRequest{From: src.Number(), To: dst.Number(), Amount: money("100")}); !errors.Is(err, domain.ErrStorage) {
		t.Errorf("Transfer error = %v, want ErrStorage", err)
	}
	_, err := f.svc.OpenAccount(ctx, OpenAccountRequest{Teller: teller, CustomerID: c.ID, Kind: domain.AccountSavings, InitialDeposit: money("75")})
	if !errors.Is(err, domain.ErrStorage) {
		t.Errorf("OpenAccount error = %v, want ErrStorage", err)
	}

	if got := f.balance(t, src.Number()); !got.Equal(money("800")) {
		t.Errorf("source balance = %s after failed writes, want 800", got)
	}
	if got := f.balance(t, dst.Number()); !got.IsZero() {
		t.Errorf("destination balance = %s after failed writes, want 0", got)
	}
	accounts, _ := f.svc.GetCustomerAccounts(ctx, c.ID)
	if len(accounts) != 2 {
		t.Errorf("customer has %d accounts, want 2", len(accounts))
	}
	for _, a := range accounts {
		if err := f.svc.VerifyAccount(ctx, a.Number()); err != nil {
			t.Errorf("VerifyAccount(%s) failed: %v", a.Number(), err)
		}
	}
}

// brokenRepo fails every call.
type brokenRepo struct{ repository.Repository }

var errDown = errors.New("connection refused")

func (brokenRepo) WithinTx(context.Context, func(context.Context, repository.Tx) error) error {
	return domain.StorageError("WithinTx", errDown)
}

func (brokenRepo) FindAccountByNumber(context.Context, string) (*domain.Account, error) {
	return nil, domain.StorageError("FindAccountByNumber", errDown)
}

func TestService_StorageUnavailable(t *testing.T) {
	svc := NewService(brokenRepo{})
	ctx := context.Background()

	if _, err := svc.Withdraw(ctx, "700000000001", money("5"), ""); !errors.Is(err, domain.ErrStorage) || !errors.Is(err, errDown) {
		t.Errorf("Withdraw error = %v, want ErrStorage wrapping the cause", err)
	}
	if _, err := svc.GetBalance(ctx, "700000000001"); !errors.Is(err, domain.ErrStorage) {
		t.Errorf("GetBalance error = %v, want ErrStorage", err)
	}
	if n := svc.locks.size(); n != 0 {
		t.Errorf("%d locks leaked after failures", n)
	}
}
