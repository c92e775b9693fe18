package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// InsertTransactionsWithClient streams a batch of TransactionRow into the table.
// transaction_id is sent as the insert ID so BigQuery drops retried duplicates.
func InsertTransactionsWithClient(ctx context.Context, table *bigquery.Table, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	savers := make([]*bigquery.StructSaver, 0, len(rows))
	for _, row := range rows {
		savers = append(savers, &bigquery.StructSaver{
			Struct:   row,
			InsertID: strconv.FormatInt(row.TransactionID, 10),
		})
	}
	if err := table.Inserter().Put(ctx, savers); err != nil {
		return fmt.Errorf("InsertTransactions: inserting %d rows: %w", len(rows), err)
	}
	return nil
}

// MaxTransactionIDWithClient returns the highest exported transaction_id, or 0 when the
// table is empty or does not exist yet.
func MaxTransactionIDWithClient(ctx context.Context, client *bigquery.Client, table *bigquery.Table) (int64, error) {
	q := client.Query(fmt.Sprintf(
		"SELECT MAX(transaction_id) AS max_id FROM `%s.%s.%s`",
		table.ProjectID, table.DatasetID, table.TableID,
	))

	it, err := q.Read(ctx)
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("MaxTransactionID: reading query: %w", err)
	}

	var row struct {
		MaxID bigquery.NullInt64 `bigquery:"max_id"`
	}
	err = it.Next(&row)
	if err == iterator.Done {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("MaxTransactionID: iterating: %w", err)
	}
	if !row.MaxID.Valid {
		return 0, nil
	}
	return row.MaxID.Int64, nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
