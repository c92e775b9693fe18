package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/teller-ledger/internal/archive"
	"github.com/dvloznov/teller-ledger/internal/domain"
)

// Snapshot format identifiers. Bump SnapshotVersion on incompatible changes.
const (
	SnapshotStorage = "json_snapshot"
	SnapshotVersion = 1
)

// Meta describes a snapshot.
type Meta struct {
	Storage   string    `json:"storage"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// CustomerRecord is a customer with its owned account numbers, which the
// customer type does not serialize itself.
type CustomerRecord struct {
	*domain.Customer
	AccountNumbers []string `json:"account_numbers"`
}

func newCustomerRecord(c *domain.Customer) CustomerRecord {
	numbers := c.AccountNumbers()
	if numbers == nil {
		numbers = []string{}
	}
	return CustomerRecord{Customer: c, AccountNumbers: numbers}
}

// Snapshot is the whole ledger at one point in time. Account states carry their full history.
type Snapshot struct {
	Meta              Meta                  `json:"_meta"`
	NextTransactionID int64                 `json:"next_transaction_id"`
	Customers         []CustomerRecord      `json:"customers"`
	Accounts          []domain.AccountState `json:"accounts"`
}

// Encode renders the snapshot as indented JSON.
func (s *Snapshot) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Verify replays every account's history against its balance.
func (s *Snapshot) Verify() error {
	for _, state := range s.Accounts {
		a, err := domain.RehydrateAccount(state, nil)
		if err != nil {
			return err
		}
		if err := a.VerifyHistory(); err != nil {
			return err
		}
	}
	return nil
}

// SnapshotName is the object name for a snapshot taken at t.
func SnapshotName(t time.Time) string {
	return "ledger-" + t.UTC().Format("20060102T150405Z") + ".json"
}

// LoadSnapshot reads and decodes a snapshot, rejecting unknown formats.
func LoadSnapshot(ctx context.Context, store archive.ObjectStore, name string) (*Snapshot, error) {
	data, err := store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("LoadSnapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("LoadSnapshot %s: decoding: %w", name, err)
	}
	if snap.Meta.Storage != SnapshotStorage || snap.Meta.Version != SnapshotVersion {
		return nil, fmt.Errorf("LoadSnapshot %s: unsupported format %s v%d", name, snap.Meta.Storage, snap.Meta.Version)
	}
	return &snap, nil
}

// Restorer is a repository that can be replaced wholesale, such as *inmemory.Store.
type Restorer interface {
	Restore(customers []*domain.Customer, accounts []domain.AccountState, nextTxID int64) error
}

// Restore verifies every account in snap and loads it into store.
func (s *Snapshot) Restore(store Restorer) error {
	if err := s.Verify(); err != nil {
		return fmt.Errorf("Restore: %w", err)
	}
	customers := make([]*domain.Customer, 0, len(s.Customers))
	for _, rec := range s.Customers {
		if rec.Customer == nil {
			return fmt.Errorf("Restore: customer record without profile")
		}
		customers = append(customers, rec.Customer)
	}
	if err := store.Restore(customers, s.Accounts, s.NextTransactionID); err != nil {
		return fmt.Errorf("Restore: %w", err)
	}
	return nil
}

// RestoreFrom loads the named snapshot into target. It reports false, and leaves
// target alone, when the object does not exist yet.
func RestoreFrom(ctx context.Context, store archive.ObjectStore, name string, target Restorer) (bool, error) {
	snap, err := LoadSnapshot(ctx, store, name)
	if errors.Is(err, archive.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := snap.Restore(target); err != nil {
		return false, err
	}
	return true, nil
}
