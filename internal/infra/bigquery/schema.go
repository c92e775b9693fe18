package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
)

// ensureTable creates table with a schema inferred from row, partitioned by day on
// partitionField. An existing table is left as it is.
func ensureTable(ctx context.Context, table *bigquery.Table, row any, partitionField string) error {
	schema, err := bigquery.InferSchema(row)
	if err != nil {
		return fmt.Errorf("ensureTable %s: inferring schema: %w", table.TableID, err)
	}
	err = table.Create(ctx, &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: partitionField,
		},
	})
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ensureTable %s: creating: %w", table.TableID, err)
	}
	return nil
}
