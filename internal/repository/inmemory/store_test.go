package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/teller-ledger/internal/domain"
	"github.com/dvloznov/teller-ledger/internal/repository"
)

var t0 = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

func newCustomer(t *testing.T, id string, at time.Time) *domain.Customer {
	t.Helper()
	c, err := domain.NewIndividual(id, domain.IndividualProfile{FirstName: "Lerato", Surname: "Khumalo", IncomeVerified: true}, at)
	if err != nil {
		t.Fatalf("NewIndividual failed: %v", err)
	}
	return c
}

// seed registers a customer and opens a savings account with an opening deposit.
func seed(t *testing.T, s *Store, customerID string) string {
	t.Helper()
	var number string
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		c := newCustomer(t, customerID, t0)
		if err := tx.SaveCustomer(ctx, c); err != nil {
			return err
		}
		n, err := tx.NextAccountNumber(ctx)
		if err != nil {
			return err
		}
		a, err := domain.NewAccount(n, domain.AccountSavings, "CPT-02", c, decimal.RequireFromString("100"), "", t0)
		if err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		for _, h := range a.History() {
			if err := tx.SaveTransaction(ctx, &h); err != nil {
				return err
			}
		}
		number = n
		return nil
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return number
}

func TestStore_CommitAndLoad(t *testing.T) {
	s := NewStore(WithIDGenerator(repository.NewSequentialAccountNumbers(1)))
	number := seed(t, s, "C1")

	if number != "700000000001" {
		t.Errorf("account number = %s, want 700000000001", number)
	}

	a, err := s.FindAccountByNumber(context.Background(), number)
	if err != nil {
		t.Fatalf("FindAccountByNumber failed: %v", err)
	}
	if !a.Balance().Equal(decimal.RequireFromString("100")) {
		t.Errorf("balance = %s, want 100", a.Balance())
	}
	history := a.History()
	if len(history) != 1 || history[0].ID != FirstTransactionID {
		t.Fatalf("history = %+v, want one entry with id %d", history, FirstTransactionID)
	}
	if a.Owner() == nil || a.Owner().ID != "C1" {
		t.Errorf("owner not attached: %+v", a.Owner())
	}
	if err := a.VerifyHistory(); err != nil {
		t.Errorf("VerifyHistory failed: %v", err)
	}

	c, err := s.FindCustomerByID(context.Background(), "C1")
	if err != nil {
		t.Fatalf("FindCustomerByID failed: %v", err)
	}
	if diff := cmp.Diff([]string{number}, c.AccountNumbers()); diff != "" {
		t.Errorf("customer accounts mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_RollbackOnError(t *testing.T) {
	s := NewStore()
	boom := errors.New("boom")

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		if err := tx.SaveCustomer(ctx, newCustomer(t, "C1", t0)); err != nil {
			return err
		}
		if _, err := tx.FindCustomerByID(ctx, "C1"); err != nil {
			t.Errorf("staged customer not visible inside the unit of work: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx error = %v, want boom", err)
	}

	_, err = s.FindCustomerByID(context.Background(), "C1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FindCustomerByID error = %v, want ErrNotFound after rollback", err)
	}
}

func TestStore_RollbackOnPanic(t *testing.T) {
	s := NewStore()
	func() {
		defer func() { _ = recover() }()
		_ = s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			_ = tx.SaveCustomer(ctx, newCustomer(t, "C1", t0))
			panic("mid-transaction")
		})
	}()

	if _, err := s.FindCustomerByID(context.Background(), "C1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("customer visible after panic: %v", err)
	}
	// The write lock must have been released.
	if err := s.WithinTx(context.Background(), func(context.Context, repository.Tx) error { return nil }); err != nil {
		t.Errorf("WithinTx after panic failed: %v", err)
	}
}

func TestStore_UncommittedWritesInvisible(t *testing.T) {
	s := NewStore()
	number := seed(t, s, "C1")

	staged := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			a, err := tx.FindAccountByNumber(ctx, number)
			if err != nil {
				return err
			}
			txn, err := a.Deposit(decimal.RequireFromString("50"), "", t0)
			if err != nil {
				return err
			}
			if err := tx.UpdateAccount(ctx, a); err != nil {
				return err
			}
			if err := tx.SaveTransaction(ctx, &txn); err != nil {
				return err
			}
			close(staged)
			<-release
			return nil
		})
	}()

	<-staged
	a, err := s.FindAccountByNumber(context.Background(), number)
	if err != nil {
		t.Fatalf("FindAccountByNumber failed: %v", err)
	}
	if !a.Balance().Equal(decimal.RequireFromString("100")) {
		t.Errorf("reader saw uncommitted balance %s", a.Balance())
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("WithinTx failed: %v", err)
	}

	a, _ = s.FindAccountByNumber(context.Background(), number)
	if !a.Balance().Equal(decimal.RequireFromString("150")) {
		t.Errorf("balance after commit = %s, want 150", a.Balance())
	}
}

func TestStore_ConcurrentUnitsOfWork(t *testing.T) {
	s := NewStore()
	number := seed(t, s, "C1")

	const workers = 40
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
				a, err := tx.FindAccountByNumber(ctx, number)
				if err != nil {
					return err
				}
				txn, err := a.Deposit(decimal.NewFromInt(1), "", t0)
				if err != nil {
					return err
				}
				if err := tx.UpdateAccount(ctx, a); err != nil {
					return err
				}
				return tx.SaveTransaction(ctx, &txn)
			})
			if err != nil {
				t.Errorf("WithinTx failed: %v", err)
			}
		}()
	}
	wg.Wait()

	a, err := s.FindAccountByNumber(context.Background(), number)
	if err != nil {
		t.Fatalf("FindAccountByNumber failed: %v", err)
	}
	if want := decimal.NewFromInt(100 + workers); !a.Balance().Equal(want) {
		t.Errorf("balance = %s, want %s", a.Balance(), want)
	}
	if got := len(a.History()); got != workers+1 {
		t.Errorf("history length = %d, want %d", got, workers+1)
	}
	if err := a.VerifyHistory(); err != nil {
		t.Errorf("VerifyHistory failed: %v", err)
	}
}

func TestStore_FindTransactionsByAccount(t *testing.T) {
	s := NewStore()
	number := seed(t, s, "C1")

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		a, err := tx.FindAccountByNumber(ctx, number)
		if err != nil {
			return err
		}
		for i := 1; i <= 3; i++ {
			txn, err := a.Deposit(decimal.NewFromInt(int64(i)), "", t0.AddDate(0, 0, i))
			if err != nil {
				return err
			}
			if err := tx.SaveTransaction(ctx, &txn); err != nil {
				return err
			}
		}
		return tx.UpdateAccount(ctx, a)
	})
	if err != nil {
		t.Fatalf("WithinTx failed: %v", err)
	}

	tests := []struct {
		name    string
		filter  repository.TransactionFilter
		wantIDs []int64
	}{
		{name: "all", wantIDs: []int64{1000, 1001, 1002, 1003}},
		{name: "limit keeps most recent", filter: repository.TransactionFilter{Limit: 2}, wantIDs: []int64{1002, 1003}},
		{name: "since", filter: repository.TransactionFilter{Since: t0.AddDate(0, 0, 2)}, wantIDs: []int64{1002, 1003}},
		{name: "until inclusive", filter: repository.TransactionFilter{Until: t0.AddDate(0, 0, 1)}, wantIDs: []int64{1000, 1001}},
		{name: "window", filter: repository.TransactionFilter{Since: t0.AddDate(0, 0, 1), Until: t0.AddDate(0, 0, 2)}, wantIDs: []int64{1001, 1002}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindTransactionsByAccount(context.Background(), number, tt.filter)
			if err != nil {
				t.Fatalf("FindTransactionsByAccount failed: %v", err)
			}
			var ids []int64
			for _, txn := range got {
				ids = append(ids, txn.ID)
			}
			if diff := cmp.Diff(tt.wantIDs, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := s.FindTransactionsByAccount(context.Background(), "799999999999", repository.TransactionFilter{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown account error = %v, want ErrNotFound", err)
	}
}

func TestStore_FindTransactionsAfter(t *testing.T) {
	s := NewStore()
	seed(t, s, "C1")
	seed(t, s, "C2")
	seed(t, s, "C3")

	got, err := s.FindTransactionsAfter(context.Background(), 1000, 1)
	if err != nil {
		t.Fatalf("FindTransactionsAfter failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1001 {
		t.Errorf("FindTransactionsAfter(1000, 1) = %+v, want id 1001", got)
	}

	got, _ = s.FindTransactionsAfter(context.Background(), 0, 0)
	if len(got) != 3 {
		t.Errorf("FindTransactionsAfter(0, 0) returned %d entries, want 3", len(got))
	}
	got, _ = s.FindTransactionsAfter(context.Background(), 1002, 10)
	if len(got) != 0 {
		t.Errorf("FindTransactionsAfter past the end returned %d entries", len(got))
	}
}

func TestStore_DeleteAccount(t *testing.T) {
	s := NewStore()
	number := seed(t, s, "C1")

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.DeleteAccount(ctx, number)
	})
	if err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}

	if _, err := s.FindAccountByNumber(context.Background(), number); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FindAccountByNumber error = %v, want ErrNotFound", err)
	}
	c, _ := s.FindCustomerByID(context.Background(), "C1")
	if len(c.AccountNumbers()) != 0 {
		t.Errorf("customer still owns %v", c.AccountNumbers())
	}
	all, _ := s.FindTransactionsAfter(context.Background(), 0, 0)
	if len(all) != 0 {
		t.Errorf("journal still has %d entries", len(all))
	}
}

func TestStore_Duplicates(t *testing.T) {
	s := NewStore()
	seed(t, s, "C1")

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.SaveCustomer(ctx, newCustomer(t, "C1", t0))
	})
	if !errors.Is(err, domain.ErrStorage) {
		t.Errorf("duplicate customer error = %v, want ErrStorage", err)
	}
}

func TestStore_SaveTransactionRejectsNonPositiveAmount(t *testing.T) {
	s := NewStore()
	number := seed(t, s, "C1")

	for _, amount := range []string{"0", "-1.00"} {
		t.Run(amount, func(t *testing.T) {
			err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
				return tx.SaveTransaction(ctx, &domain.Transaction{
					AccountNumber: number,
					Kind:          domain.TransactionDeposit,
					Amount:        decimal.RequireFromString(amount),
					BalanceAfter:  decimal.RequireFromString("100"),
					CreatedAt:     t0,
				})
			})
			if !errors.Is(err, domain.ErrStorage) {
				t.Errorf("SaveTransaction(%s) error = %v, want ErrStorage", amount, err)
			}
		})
	}

	txs, err := s.FindTransactionsAfter(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("FindTransactionsAfter failed: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("journal has %d entries, want only the opening deposit", len(txs))
	}
}

func TestStore_ListingOrder(t *testing.T) {
	s := NewStore(WithIDGenerator(repository.NewSequentialAccountNumbers(1)))
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		if err := tx.SaveCustomer(ctx, newCustomer(t, "LATE", t0.Add(time.Hour))); err != nil {
			return err
		}
		return tx.SaveCustomer(ctx, newCustomer(t, "EARLY", t0))
	})
	if err != nil {
		t.Fatalf("WithinTx failed: %v", err)
	}
	seed(t, s, "C3")
	seed(t, s, "C4")

	customers, err := s.FindAllCustomers(context.Background())
	if err != nil {
		t.Fatalf("FindAllCustomers failed: %v", err)
	}
	var ids []string
	for _, c := range customers {
		ids = append(ids, c.ID)
	}
	if diff := cmp.Diff([]string{"EARLY", "C3", "C4", "LATE"}, ids); diff != "" {
		t.Errorf("customer order mismatch (-want +got):\n%s", diff)
	}

	accounts, err := s.FindAllAccounts(context.Background(), repository.AccountFilter{Limit: 1})
	if err != nil {
		t.Fatalf("FindAllAccounts failed: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Number() != "700000000002" {
		t.Errorf("FindAllAccounts(limit 1) = %v, want the last opened account", accounts)
	}
}

func TestStore_CanceledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.WithinTx(ctx, func(context.Context, repository.Tx) error {
		t.Error("callback ran with a canceled context")
		return nil
	})
	if !errors.Is(err, domain.ErrStorage) || !errors.Is(err, context.Canceled) {
		t.Errorf("WithinTx error = %v, want ErrStorage wrapping context.Canceled", err)
	}
}

func TestStore_Restore(t *testing.T) {
	ctx := context.Background()
	src := NewStore(WithIDGenerator(repository.NewSequentialAccountNumbers(1)))
	first := seed(t, src, "C-1")
	second := seed(t, src, "C-2")
	if err := src.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.DeleteAccount(ctx, first)
	}); err != nil {
		t.Fatal(err)
	}

	customers, err := src.FindAllCustomers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	accounts, err := src.FindAllAccounts(ctx, repository.AccountFilter{})
	if err != nil {
		t.Fatal(err)
	}
	var states []domain.AccountState
	for _, a := range accounts {
		states = append(states, a.State())
	}

	dst := NewStore(WithIDGenerator(repository.NewSequentialAccountNumbers(10)))
	if err := dst.Restore(customers, states, 0); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	got, err := dst.FindAccountByNumber(ctx, second)
	if err != nil {
		t.Fatalf("FindAccountByNumber() error = %v", err)
	}
	if diff := cmp.Diff(states[0].History, got.History()); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	owner, err := dst.FindCustomerByID(ctx, "C-2")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{second}, owner.AccountNumbers()); diff != "" {
		t.Errorf("AccountNumbers() mismatch (-want +got):\n%s", diff)
	}

	// The restored sequence continues after the highest restored ID.
	var next domain.Transaction
	err = dst.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		next = domain.Transaction{AccountNumber: second, Kind: domain.TransactionDeposit, Amount: decimal.RequireFromString("1"), BalanceAfter: decimal.RequireFromString("101"), CreatedAt: t0}
		return tx.SaveTransaction(ctx, &next)
	})
	if err != nil {
		t.Fatal(err)
	}
	if next.ID != 1002 {
		t.Errorf("next transaction id = %d, want 1002", next.ID)
	}

	orphan := states[0]
	orphan.Number = "700000000099"
	orphan.CustomerID = "nobody"
	orphan.History = nil
	if err := dst.Restore(customers, []domain.AccountState{orphan}, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Restore() with unknown owner error = %v, want ErrNotFound", err)
	}
}
