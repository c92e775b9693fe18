package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/teller-ledger/internal/domain"
)

// AccountSnapshotRow is an account's balance at export time in <dataset>.account_snapshots.
// Rows are append-only; the latest snapshot_ts per account is its current state.
type AccountSnapshotRow struct {
	AccountNumber string `bigquery:"account_number"` // REQUIRED
	CustomerID    string `bigquery:"customer_id"`    // REQUIRED
	AccountKind   string `bigquery:"account_kind"`   // REQUIRED
	Branch        string `bigquery:"branch"`

	Balance     *big.Rat `bigquery:"balance"`      // REQUIRED NUMERIC
	MonthlyRate *big.Rat `bigquery:"monthly_rate"` // REQUIRED NUMERIC

	OpenedDate     civil.Date             `bigquery:"opened_date"`      // REQUIRED
	LastInterestTS bigquery.NullTimestamp `bigquery:"last_interest_ts"` // NULLABLE

	SnapshotTS time.Time `bigquery:"snapshot_ts"` // REQUIRED, partition column
}

// NewAccountSnapshotRow maps an account to a snapshot row taken at snapshotAt.
func NewAccountSnapshotRow(a *domain.Account, snapshotAt time.Time) *AccountSnapshotRow {
	row := &AccountSnapshotRow{
		AccountNumber: a.Number(),
		CustomerID:    a.CustomerID(),
		AccountKind:   string(a.Kind()),
		Branch:        a.Branch(),
		Balance:       a.Balance().Rat(),
		MonthlyRate:   a.Policy().MonthlyRate.Rat(),
		OpenedDate:    civil.DateOf(a.OpenedAt().UTC()),
		SnapshotTS:    snapshotAt.UTC(),
	}
	if last := a.LastInterestAt(); last != nil {
		row.LastInterestTS = bigquery.NullTimestamp{Timestamp: last.UTC(), Valid: true}
	}
	return row
}
