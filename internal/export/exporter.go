// Package export copies the ledger out of the primary store: transactions into the
// warehouse by cursor, and whole-ledger JSON snapshots into an archive.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/teller-ledger/internal/archive"
	"github.com/dvloznov/teller-ledger/internal/domain"
	bq "github.com/dvloznov/teller-ledger/internal/infra/bigquery"
	"github.com/dvloznov/teller-ledger/internal/repository"
)

// DefaultBatchSize is how many transactions SyncLedger sends per insert.
const DefaultBatchSize = 500

// ErrNotConfigured is returned when an operation's destination was not provided.
var ErrNotConfigured = errors.New("export destination not configured")

// Warehouse is the part of bigquery.Warehouse the exporter writes to.
type Warehouse interface {
	MaxTransactionID(ctx context.Context) (int64, error)
	InsertTransactions(ctx context.Context, rows []*bq.TransactionRow) error
	InsertAccountSnapshots(ctx context.Context, rows []*bq.AccountSnapshotRow) error
}

var _ Warehouse = (*bq.Warehouse)(nil)

// Exporter reads from a repository and writes to a warehouse and an archive.
type Exporter struct {
	repo      repository.Repository
	warehouse Warehouse
	archive   archive.ObjectStore
	batchSize int
	log       zerolog.Logger
	now       func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithWarehouse enables SyncLedger and SnapshotAccounts.
func WithWarehouse(w Warehouse) Option {
	return func(e *Exporter) { e.warehouse = w }
}

// WithArchive enables Archive.
func WithArchive(store archive.ObjectStore) Option {
	return func(e *Exporter) { e.archive = store }
}

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithLogger sets the exporter's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Exporter) { e.log = log }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// NewExporter creates an exporter over repo.
func NewExporter(repo repository.Repository, opts ...Option) *Exporter {
	e := &Exporter{
		repo:      repo,
		batchSize: DefaultBatchSize,
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncResult describes one SyncLedger call.
type SyncResult struct {
	// FromID is the warehouse cursor before the sync; LastID after it.
	FromID   int64 `json:"from_id"`
	LastID   int64 `json:"last_id"`
	Exported int   `json:"exported"`
	Batches  int   `json:"batches"`
}

// SyncLedger sends every transaction with an ID above the warehouse's highest exported
// ID. Running it again after a partial failure resumes from the last inserted batch.
func (e *Exporter) SyncLedger(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	if e.warehouse == nil {
		return res, fmt.Errorf("SyncLedger: warehouse: %w", ErrNotConfigured)
	}

	cursor, err := e.warehouse.MaxTransactionID(ctx)
	if err != nil {
		return res, fmt.Errorf("SyncLedger: reading cursor: %w", err)
	}
	res.FromID, res.LastID = cursor, cursor

	for {
		txs, err := e.repo.FindTransactionsAfter(ctx, res.LastID, e.batchSize)
		if err != nil {
			return res, fmt.Errorf("SyncLedger: reading ledger after %d: %w", res.LastID, err)
		}
		if len(txs) == 0 {
			break
		}

		exportedAt := e.now()
		rows := make([]*bq.TransactionRow, 0, len(txs))
		for _, tx := range txs {
			rows = append(rows, bq.NewTransactionRow(tx, exportedAt))
		}
		if err := e.warehouse.InsertTransactions(ctx, rows); err != nil {
			return res, fmt.Errorf("SyncLedger: batch after %d: %w", res.LastID, err)
		}

		res.LastID = txs[len(txs)-1].ID
		res.Exported += len(txs)
		res.Batches++
		e.log.Debug().
			Int("batch_size", len(txs)).
			Int64("last_id", res.LastID).
			Msg("Exported transaction batch")

		if len(txs) < e.batchSize {
			break
		}
	}

	e.log.Info().
		Int64("from_id", res.FromID).
		Int64("last_id", res.LastID).
		Int("exported", res.Exported).
		Msg("Ledger sync finished")
	return res, nil
}

// SnapshotAccounts appends every account's current balance to the warehouse.
func (e *Exporter) SnapshotAccounts(ctx context.Context) (int, error) {
	if e.warehouse == nil {
		return 0, fmt.Errorf("SnapshotAccounts: warehouse: %w", ErrNotConfigured)
	}
	accounts, err := e.repo.FindAllAccounts(ctx, repository.AccountFilter{})
	if err != nil {
		return 0, fmt.Errorf("SnapshotAccounts: listing accounts: %w", err)
	}

	at := e.now()
	rows := make([]*bq.AccountSnapshotRow, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, bq.NewAccountSnapshotRow(a, at))
	}
	for start := 0; start < len(rows); start += e.batchSize {
		end := min(start+e.batchSize, len(rows))
		if err := e.warehouse.InsertAccountSnapshots(ctx, rows[start:end]); err != nil {
			return start, fmt.Errorf("SnapshotAccounts: inserting: %w", err)
		}
	}

	e.log.Info().Int("accounts", len(rows)).Msg("Account snapshots exported")
	return len(rows), nil
}

// ArchiveResult describes one archived snapshot.
type ArchiveResult struct {
	Name         string `json:"name"`
	URI          string `json:"uri"`
	Customers    int    `json:"customers"`
	Accounts     int    `json:"accounts"`
	Transactions int    `json:"transactions"`
	Bytes        int    `json:"bytes"`
}

// Archive writes a full ledger snapshot to the archive under a timestamped name.
func (e *Exporter) Archive(ctx context.Context, note string) (ArchiveResult, error) {
	return e.ArchiveAs(ctx, "", note)
}

// ArchiveAs writes a full ledger snapshot under name, replacing any object with
// that name. An empty name means SnapshotName of the snapshot time.
func (e *Exporter) ArchiveAs(ctx context.Context, name, note string) (ArchiveResult, error) {
	var res ArchiveResult
	if e.archive == nil {
		return res, fmt.Errorf("Archive: object store: %w", ErrNotConfigured)
	}

	snap, err := e.buildSnapshot(ctx, note)
	if err != nil {
		return res, fmt.Errorf("Archive: %w", err)
	}
	data, err := snap.Encode()
	if err != nil {
		return res, fmt.Errorf("Archive: %w", err)
	}

	res.Name = name
	if res.Name == "" {
		res.Name = SnapshotName(snap.Meta.Timestamp)
	}
	if err := e.archive.Put(ctx, res.Name, data); err != nil {
		return res, fmt.Errorf("Archive: %w", err)
	}
	res.URI = e.archive.URI(res.Name)
	res.Customers = len(snap.Customers)
	res.Accounts = len(snap.Accounts)
	for _, a := range snap.Accounts {
		res.Transactions += len(a.History)
	}
	res.Bytes = len(data)

	e.log.Info().
		Str("uri", res.URI).
		Int("customers", res.Customers).
		Int("accounts", res.Accounts).
		Int("transactions", res.Transactions).
		Msg("Ledger archived")
	return res, nil
}

// buildSnapshot reads customers and accounts inside one unit of work so the
// in-memory store does not change between the two reads.
func (e *Exporter) buildSnapshot(ctx context.Context, note string) (*Snapshot, error) {
	snap := &Snapshot{Meta: Meta{Storage: SnapshotStorage, Version: SnapshotVersion, Timestamp: e.now().UTC(), Note: note}}
	err := e.repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		customers, err := tx.FindAllCustomers(ctx)
		if err != nil {
			return err
		}
		accounts, err := tx.FindAllAccounts(ctx, repository.AccountFilter{})
		if err != nil {
			return err
		}
		for _, c := range customers {
			snap.Customers = append(snap.Customers, newCustomerRecord(c))
		}
		for _, a := range accounts {
			state := a.State()
			snap.Accounts = append(snap.Accounts, state)
			if n := len(state.History); n > 0 && state.History[n-1].ID >= snap.NextTransactionID {
				snap.NextTransactionID = state.History[n-1].ID + 1
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	if snap.Customers == nil {
		snap.Customers = []CustomerRecord{}
	}
	if snap.Accounts == nil {
		snap.Accounts = []domain.AccountState{}
	}
	return snap, nil
}
