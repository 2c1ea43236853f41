// Package ledgertest provides an in-memory ledger store for document module
// tests. It mirrors the SQL store's behaviour: serialized transactions with
// full rollback on failure and a unique key per (doc, line, direction).
package ledgertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/shared"
)

// MemoryStore implements ledger.Store over a slice of entries.
type MemoryStore struct {
	mu      sync.Mutex
	entries []ledger.Entry
	unique  map[string]struct{}
	nextID  int64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{unique: make(map[string]struct{})}
}

type memoryTx struct {
	s *MemoryStore
}

func entryKey(e ledger.Entry) string {
	return fmt.Sprintf("%s:%d:%d:%s", e.DocType, e.DocID, e.LineID, e.Direction)
}

// WithTx serializes writers and rolls the store back when fn fails.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(context.Context, ledger.TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := append([]ledger.Entry(nil), s.entries...)
	uniqueSnapshot := make(map[string]struct{}, len(s.unique))
	for k := range s.unique {
		uniqueSnapshot[k] = struct{}{}
	}
	if err := fn(ctx, &memoryTx{s: s}); err != nil {
		s.entries = snapshot
		s.unique = uniqueSnapshot
		return err
	}
	return nil
}

func (s *MemoryStore) SumStock(ctx context.Context, productID, warehouseID int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sumLocked(productID, warehouseID), nil
}

func (s *MemoryStore) sumLocked(productID, warehouseID int64) float64 {
	var sum float64
	for _, e := range s.entries {
		if e.ProductID == productID && (warehouseID == 0 || e.WarehouseID == warehouseID) {
			sum += e.Qty
		}
	}
	return sum
}

func (s *MemoryStore) SumStockTotal(ctx context.Context, productID int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sumLocked(productID, 0), nil
}

func (s *MemoryStore) ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Entry
	for _, e := range s.entries {
		if filter.ProductID != 0 && e.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != 0 && e.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.DocType != "" && e.DocType != filter.DocType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Entries returns a copy of all stored entries for assertions.
func (s *MemoryStore) Entries() []ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (t *memoryTx) DB() db.DBTX { return nil }

func (t *memoryTx) HasEntries(ctx context.Context, ref ledger.DocRef) (bool, error) {
	for _, e := range t.s.entries {
		if e.DocType == ref.Type && e.DocID == ref.ID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertEntries(ctx context.Context, entries []ledger.Entry) error {
	for _, e := range entries {
		key := entryKey(e)
		if _, dup := t.s.unique[key]; dup {
			return fmt.Errorf("ledger: %s line %d: %w", ledger.DocRef{Type: e.DocType, ID: e.DocID}, e.LineID, shared.ErrAlreadyPosted)
		}
		t.s.unique[key] = struct{}{}
		t.s.nextID++
		e.ID = t.s.nextID
		t.s.entries = append(t.s.entries, e)
	}
	return nil
}

func (t *memoryTx) DeleteEntries(ctx context.Context, ref ledger.DocRef) (int64, error) {
	var kept []ledger.Entry
	var removed int64
	for _, e := range t.s.entries {
		if e.DocType == ref.Type && e.DocID == ref.ID {
			delete(t.s.unique, entryKey(e))
			removed++
			continue
		}
		kept = append(kept, e)
	}
	t.s.entries = kept
	return removed, nil
}
