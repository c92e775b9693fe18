package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/teller-ledger/internal/domain"
)

// TransactionRow is one exported ledger entry in <dataset>.transactions.
// transaction_id is the ledger sequence and doubles as the export cursor.
type TransactionRow struct {
	TransactionID int64  `bigquery:"transaction_id"` // REQUIRED
	AccountNumber string `bigquery:"account_number"` // REQUIRED
	Kind          string `bigquery:"kind"`           // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED, partition column

	Amount       *big.Rat `bigquery:"amount"`        // REQUIRED NUMERIC, always positive
	SignedAmount *big.Rat `bigquery:"signed_amount"` // REQUIRED NUMERIC, negative for withdrawals
	BalanceAfter *big.Rat `bigquery:"balance_after"` // REQUIRED NUMERIC

	Description string `bigquery:"description"`

	CreatedTS  time.Time `bigquery:"created_ts"`  // REQUIRED
	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
}

// NewTransactionRow maps a ledger entry to its warehouse row. Dates are taken in UTC.
func NewTransactionRow(tx domain.Transaction, exportedAt time.Time) *TransactionRow {
	created := tx.CreatedAt.UTC()
	return &TransactionRow{
		TransactionID:   tx.ID,
		AccountNumber:   tx.AccountNumber,
		Kind:            string(tx.Kind),
		TransactionDate: civil.DateOf(created),
		Amount:          tx.Amount.Rat(),
		SignedAmount:    tx.Delta().Rat(),
		BalanceAfter:    tx.BalanceAfter.Rat(),
		Description:     tx.Description,
		CreatedTS:       created,
		ExportedTS:      exportedAt.UTC(),
	}
}
