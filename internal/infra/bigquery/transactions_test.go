package bigquery

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/teller-ledger/internal/domain"
)

func TestNewTransactionRow(t *testing.T) {
	johannesburg := time.FixedZone("SAST", 2*60*60)
	created := time.Date(2024, time.March, 1, 1, 30, 0, 0, johannesburg)
	exported := time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		tx         domain.Transaction
		wantSigned string
	}{
		{
			name: "withdrawal is negative",
			tx: domain.Transaction{
				ID: 1002, AccountNumber: "700000000001", Kind: domain.TransactionWithdrawal,
				Amount: decimal.RequireFromString("50.25"), BalanceAfter: decimal.RequireFromString("449.75"),
				Description: "Cash withdrawal", CreatedAt: created,
			},
			wantSigned: "-50.25",
		},
		{
			name: "interest is positive",
			tx: domain.Transaction{
				ID: 1003, AccountNumber: "700000000001", Kind: domain.TransactionInterest,
				Amount: decimal.RequireFromString("1.50"), BalanceAfter: decimal.RequireFromString("451.25"),
				Description: domain.InterestDescription, CreatedAt: created,
			},
			wantSigned: "1.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := NewTransactionRow(tt.tx, exported)

			if row.TransactionID != tt.tx.ID || row.AccountNumber != tt.tx.AccountNumber || row.Kind != string(tt.tx.Kind) {
				t.Errorf("identity fields = %d/%s/%s", row.TransactionID, row.AccountNumber, row.Kind)
			}
			// 01:30 SAST is the previous day in UTC.
			if want := (civil.Date{Year: 2024, Month: time.February, Day: 29}); row.TransactionDate != want {
				t.Errorf("TransactionDate = %v, want %v", row.TransactionDate, want)
			}
			if row.Amount.Cmp(tt.tx.Amount.Rat()) != 0 {
				t.Errorf("Amount = %s, want %s", row.Amount.FloatString(2), tt.tx.Amount)
			}
			if want, _ := new(big.Rat).SetString(tt.wantSigned); row.SignedAmount.Cmp(want) != 0 {
				t.Errorf("SignedAmount = %s, want %s", row.SignedAmount.FloatString(2), tt.wantSigned)
			}
			if row.CreatedTS.Location() != time.UTC || !row.CreatedTS.Equal(created) {
				t.Errorf("CreatedTS = %v, want %v in UTC", row.CreatedTS, created)
			}
			if !row.ExportedTS.Equal(exported) {
				t.Errorf("ExportedTS = %v, want %v", row.ExportedTS, exported)
			}
		})
	}
}
