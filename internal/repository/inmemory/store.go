// Package inmemory is a process-local implementation of the repository port.
// Data is lost on restart; archive snapshots with the export package to keep it.
package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/dvloznov/teller-ledger/internal/domain"
	"github.com/dvloznov/teller-ledger/internal/repository"
)

// FirstTransactionID is the ID given to the first ledger entry of a fresh store.
const FirstTransactionID int64 = 1000

// Store keeps customers, accounts and their ledgers in memory. It is safe for concurrent use.
// Units of work run one at a time over a staged copy that replaces the committed data on success.
type Store struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	data    *snapshot
	ids     repository.IDGenerator
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the random account number generator.
func WithIDGenerator(ids repository.IDGenerator) Option {
	return func(s *Store) { s.ids = ids }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		data: &snapshot{
			customers: make(map[string]*domain.Customer),
			accounts:  make(map[string]domain.AccountState),
			ledger:    make(map[string][]domain.Transaction),
			nextTxID:  FirstTransactionID,
		},
		ids: repository.NewRandomAccountNumbers(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// committed returns the current snapshot. Published snapshots are never mutated.
func (s *Store) committed() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// WithinTx implements repository.Repository.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return domain.StorageError("WithinTx", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	u := &unit{snapshot: s.committed().clone(), ids: s.ids}
	defer func() { u.closed = true }()

	if err := fn(ctx, u); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.StorageError("WithinTx: commit", err)
	}

	s.mu.Lock()
	s.data = u.snapshot
	s.mu.Unlock()
	return nil
}

// Close implements repository.Repository.
func (s *Store) Close() error { return nil }

// Restore replaces the store contents, keeping account order and transaction IDs.
// Owned account numbers are rebuilt from the accounts. nextTxID below the highest
// restored ID is raised past it.
func (s *Store) Restore(customers []*domain.Customer, accounts []domain.AccountState, nextTxID int64) error {
	const op = "Restore"
	data := &snapshot{
		customers: make(map[string]*domain.Customer, len(customers)),
		accounts:  make(map[string]domain.AccountState, len(accounts)),
		ledger:    make(map[string][]domain.Transaction, len(accounts)),
		nextTxID:  max(nextTxID, FirstTransactionID),
	}
	for _, c := range customers {
		if _, dup := data.customers[c.ID]; dup {
			return domain.StorageError(op, fmt.Errorf("duplicate customer %s", c.ID))
		}
		cp := c.Clone()
		for _, n := range cp.AccountNumbers() {
			cp.DetachAccount(n)
		}
		data.customers[c.ID] = cp
		data.customerOrder = append(data.customerOrder, c.ID)
	}
	for _, state := range accounts {
		if _, dup := data.accounts[state.Number]; dup {
			return domain.StorageError(op, fmt.Errorf("duplicate account %s", state.Number))
		}
		owner, ok := data.customers[state.CustomerID]
		if !ok {
			return domain.NotFoundCustomer(op, state.CustomerID)
		}
		history := slices.Clone(state.History)
		for _, t := range history {
			if t.AccountNumber != state.Number {
				return domain.StorageError(op, fmt.Errorf("transaction %d belongs to %s, not %s", t.ID, t.AccountNumber, state.Number))
			}
			if t.ID >= data.nextTxID {
				data.nextTxID = t.ID + 1
			}
		}
		state.History = nil
		data.accounts[state.Number] = state
		data.accountOrder = append(data.accountOrder, state.Number)
		data.ledger[state.Number] = history
		data.journal = append(data.journal, history...)
		owner.AttachAccount(state.Number)
	}
	sort.SliceStable(data.journal, func(i, j int) bool { return data.journal[i].ID < data.journal[j].ID })

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

func (s *Store) FindAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	return s.committed().FindAccountByNumber(ctx, number)
}

func (s *Store) FindAccountsByCustomer(ctx context.Context, customerID string) ([]*domain.Account, error) {
	return s.committed().FindAccountsByCustomer(ctx, customerID)
}

func (s *Store) FindAllAccounts(ctx context.Context, filter repository.AccountFilter) ([]*domain.Account, error) {
	return s.committed().FindAllAccounts(ctx, filter)
}

func (s *Store) FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	return s.committed().FindCustomerByID(ctx, id)
}

func (s *Store) FindAllCustomers(ctx context.Context) ([]*domain.Customer, error) {
	return s.committed().FindAllCustomers(ctx)
}

func (s *Store) FindTransactionsByAccount(ctx context.Context, number string, filter repository.TransactionFilter) ([]domain.Transaction, error) {
	return s.committed().FindTransactionsByAccount(ctx, number, filter)
}

func (s *Store) FindTransactionsAfter(ctx context.Context, afterID int64, limit int) ([]domain.Transaction, error) {
	return s.committed().FindTransactionsAfter(ctx, afterID, limit)
}

// snapshot is one version of the store contents. Account states carry no history; the ledger map does.
type snapshot struct {
	customers     map[string]*domain.Customer
	customerOrder []string
	accounts      map[string]domain.AccountState
	accountOrder  []string
	ledger        map[string][]domain.Transaction
	journal       []domain.Transaction
	nextTxID      int64
}

// clone copies the maps. Ledger slices are clipped so appends in the copy reallocate.
func (s *snapshot) clone() *snapshot {
	cp := &snapshot{
		customers:     make(map[string]*domain.Customer, len(s.customers)),
		customerOrder: slices.Clip(s.customerOrder),
		accounts:      make(map[string]domain.AccountState, len(s.accounts)),
		accountOrder:  slices.Clip(s.accountOrder),
		ledger:        make(map[string][]domain.Transaction, len(s.ledger)),
		journal:       slices.Clip(s.journal),
		nextTxID:      s.nextTxID,
	}
	for id, c := range s.customers {
		cp.customers[id] = c.Clone()
	}
	for n, a := range s.accounts {
		cp.accounts[n] = a
	}
	for n, l := range s.ledger {
		cp.ledger[n] = slices.Clip(l)
	}
	return cp
}

func (s *snapshot) load(op, number string) (*domain.Account, error) {
	state, ok := s.accounts[number]
	if !ok {
		return nil, domain.NotFoundAccount(op, number)
	}
	state.History = s.ledger[number]
	account, err := domain.RehydrateAccount(state, s.customers[state.CustomerID].Clone())
	if err != nil {
		return nil, domain.StorageError(op, err)
	}
	return account, nil
}

func (s *snapshot) FindAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	return s.load("FindAccountByNumber", number)
}

func (s *snapshot) FindAccountsByCustomer(ctx context.Context, customerID string) ([]*domain.Account, error) {
	const op = "FindAccountsByCustomer"
	customer, ok := s.customers[customerID]
	if !ok {
		return nil, domain.NotFoundCustomer(op, customerID)
	}
	accounts := make([]*domain.Account, 0, len(customer.AccountNumbers()))
	for _, number := range customer.AccountNumbers() {
		a, err := s.load(op, number)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func (s *snapshot) FindAllAccounts(ctx context.Context, filter repository.AccountFilter) ([]*domain.Account, error) {
	numbers := s.accountOrder
	if filter.Limit > 0 && filter.Limit < len(numbers) {
		numbers = numbers[len(numbers)-filter.Limit:]
	}
	accounts := make([]*domain.Account, 0, len(numbers))
	for _, number := range numbers {
		a, err := s.load("FindAllAccounts", number)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func (s *snapshot) FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, domain.NotFoundCustomer("FindCustomerByID", id)
	}
	return c.Clone(), nil
}

func (s *snapshot) FindAllCustomers(ctx context.Context) ([]*domain.Customer, error) {
	customers := make([]*domain.Customer, 0, len(s.customerOrder))
	for _, id := range s.customerOrder {
		customers = append(customers, s.customers[id].Clone())
	}
	sort.SliceStable(customers, func(i, j int) bool {
		return customers[i].RegisteredAt.Before(customers[j].RegisteredAt)
	})
	return customers, nil
}

func (s *snapshot) FindTransactionsByAccount(ctx context.Context, number string, filter repository.TransactionFilter) ([]domain.Transaction, error) {
	if _, ok := s.accounts[number]; !ok {
		return nil, domain.NotFoundAccount("FindTransactionsByAccount", number)
	}
	var out []domain.Transaction
	for _, t := range s.ledger[number] {
		if !filter.Since.IsZero() && t.CreatedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && t.CreatedAt.After(filter.Until) {
			continue
		}
		out = append(out, t)
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[len(out)-filter.Limit:]
	}
	return slices.Clone(out), nil
}

func (s *snapshot) FindTransactionsAfter(ctx context.Context, afterID int64, limit int) ([]domain.Transaction, error) {
	i, _ := slices.BinarySearchFunc(s.journal, afterID+1, func(t domain.Transaction, id int64) int {
		switch {
		case t.ID < id:
			return -1
		case t.ID > id:
			return 1
		}
		return 0
	})
	out := s.journal[i:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return slices.Clone(out), nil
}

// unit is the staged view handed to WithinTx callbacks.
type unit struct {
	*snapshot
	ids    repository.IDGenerator
	closed bool
}

func (u *unit) check(op string) error {
	if u.closed {
		return domain.StorageError(op, fmt.Errorf("unit of work already finished"))
	}
	return nil
}

func (u *unit) NextAccountNumber(ctx context.Context) (string, error) {
	const op = "NextAccountNumber"
	if err := u.check(op); err != nil {
		return "", err
	}
	number, err := u.ids.NewAccountNumber(ctx, func(n string) (bool, error) {
		_, taken := u.accounts[n]
		return taken, nil
	})
	if err != nil {
		return "", domain.StorageError(op, err)
	}
	return number, nil
}

func (u *unit) SaveAccount(ctx context.Context, account *domain.Account) error {
	const op = "SaveAccount"
	if err := u.check(op); err != nil {
		return err
	}
	if _, exists := u.accounts[account.Number()]; exists {
		return domain.StorageError(op, fmt.Errorf("account %s already exists", account.Number()))
	}
	owner, ok := u.customers[account.CustomerID()]
	if !ok {
		return domain.NotFoundCustomer(op, account.CustomerID())
	}
	state := account.State()
	state.History = nil
	u.accounts[state.Number] = state
	u.accountOrder = append(u.accountOrder, state.Number)
	u.ledger[state.Number] = nil
	owner.AttachAccount(state.Number)
	return nil
}

func (u *unit) UpdateAccount(ctx context.Context, account *domain.Account) error {
	const op = "UpdateAccount"
	if err := u.check(op); err != nil {
		return err
	}
	state, ok := u.accounts[account.Number()]
	if !ok {
		return domain.NotFoundAccount(op, account.Number())
	}
	state.Balance = account.Balance()
	state.Branch = account.Branch()
	state.LastInterestAt = account.LastInterestAt()
	u.accounts[state.Number] = state
	return nil
}

func (u *unit) DeleteAccount(ctx context.Context, number string) error {
	const op = "DeleteAccount"
	if err := u.check(op); err != nil {
		return err
	}
	state, ok := u.accounts[number]
	if !ok {
		return domain.NotFoundAccount(op, number)
	}
	delete(u.accounts, number)
	delete(u.ledger, number)
	u.accountOrder = slices.DeleteFunc(slices.Clone(u.accountOrder), func(n string) bool { return n == number })
	u.journal = slices.DeleteFunc(slices.Clone(u.journal), func(t domain.Transaction) bool { return t.AccountNumber == number })
	if owner, ok := u.customers[state.CustomerID]; ok {
		owner.DetachAccount(number)
	}
	return nil
}

func (u *unit) SaveCustomer(ctx context.Context, customer *domain.Customer) error {
	const op = "SaveCustomer"
	if err := u.check(op); err != nil {
		return err
	}
	if _, exists := u.customers[customer.ID]; exists {
		return domain.StorageError(op, fmt.Errorf("customer %s already exists", customer.ID))
	}
	u.customers[customer.ID] = customer.Clone()
	u.customerOrder = append(u.customerOrder, customer.ID)
	return nil
}

func (u *unit) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	const op = "SaveTransaction"
	if err := u.check(op); err != nil {
		return err
	}
	if _, ok := u.accounts[tx.AccountNumber]; !ok {
		return domain.NotFoundAccount(op, tx.AccountNumber)
	}
	if !tx.Kind.Valid() {
		return domain.StorageError(op, fmt.Errorf("unknown transaction kind %q", tx.Kind))
	}
	if !tx.Amount.IsPositive() {
		return domain.StorageError(op, fmt.Errorf("transaction amount %s must be positive", tx.Amount.StringFixed(2)))
	}
	tx.ID = u.nextTxID
	u.nextTxID++
	u.ledger[tx.AccountNumber] = append(u.ledger[tx.AccountNumber], *tx)
	u.journal = append(u.journal, *tx)
	return nil
}

// Ensure Store implements the repository port.
var (
	_ repository.Repository = (*Store)(nil)
	_ repository.Tx         = (*unit)(nil)
)
