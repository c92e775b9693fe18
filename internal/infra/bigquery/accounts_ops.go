package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// InsertAccountSnapshotsWithClient appends balance snapshots to the table.
func InsertAccountSnapshotsWithClient(ctx context.Context, table *bigquery.Table, rows []*AccountSnapshotRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertAccountSnapshots: inserting %d rows: %w", len(rows), err)
	}
	return nil
}
