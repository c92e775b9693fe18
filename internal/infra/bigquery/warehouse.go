// Package bigquery exports the ledger to BigQuery for reporting.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// DefaultSnapshotsTable holds account balance snapshots.
const DefaultSnapshotsTable = "account_snapshots"

// Warehouse writes ledger rows to one BigQuery dataset. It holds a shared client
// to avoid creating a new connection for each operation.
type Warehouse struct {
	client       *bigquery.Client
	transactions *bigquery.Table
	snapshots    *bigquery.Table
}

// NewWarehouse creates a client for projectID and targets datasetID.transactionsTable.
func NewWarehouse(ctx context.Context, projectID, datasetID, transactionsTable string) (*Warehouse, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewWarehouse: creating client: %w", err)
	}
	return NewWarehouseWithClient(client, datasetID, transactionsTable), nil
}

// NewWarehouseWithClient uses an existing client. Close closes it.
func NewWarehouseWithClient(client *bigquery.Client, datasetID, transactionsTable string) *Warehouse {
	ds := client.Dataset(datasetID)
	return &Warehouse{
		client:       client,
		transactions: ds.Table(transactionsTable),
		snapshots:    ds.Table(DefaultSnapshotsTable),
	}
}

// EnsureTables creates the transactions and snapshot tables when missing.
func (w *Warehouse) EnsureTables(ctx context.Context) error {
	if err := ensureTable(ctx, w.transactions, TransactionRow{}, "transaction_date"); err != nil {
		return err
	}
	return ensureTable(ctx, w.snapshots, AccountSnapshotRow{}, "snapshot_ts")
}

// InsertTransactions delegates to InsertTransactionsWithClient with the shared client.
func (w *Warehouse) InsertTransactions(ctx context.Context, rows []*TransactionRow) error {
	return InsertTransactionsWithClient(ctx, w.transactions, rows)
}

// MaxTransactionID delegates to MaxTransactionIDWithClient with the shared client.
func (w *Warehouse) MaxTransactionID(ctx context.Context) (int64, error) {
	return MaxTransactionIDWithClient(ctx, w.client, w.transactions)
}

// InsertAccountSnapshots delegates to InsertAccountSnapshotsWithClient with the shared client.
func (w *Warehouse) InsertAccountSnapshots(ctx context.Context, rows []*AccountSnapshotRow) error {
	return InsertAccountSnapshotsWithClient(ctx, w.snapshots, rows)
}

// Close closes the BigQuery client connection.
func (w *Warehouse) Close() error {
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}
