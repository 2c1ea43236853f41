package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/meridian-erp/meridian/internal/shared"
)

// Transitioner performs a status transition on one document of a given type.
// Document modules register their services here so the API layer can drive
// any variant through a single entry point.
type Transitioner interface {
	TransitionStatus(ctx context.Context, docID int64, to Status) error
}

// TransitionerFunc adapts a plain function to Transitioner.
type TransitionerFunc func(ctx context.Context, docID int64, to Status) error

// TransitionStatus implements Transitioner.
func (f TransitionerFunc) TransitionStatus(ctx context.Context, docID int64, to Status) error {
	return f(ctx, docID, to)
}

// Dispatcher routes transitionStatus calls to the owning document module.
type Dispatcher struct {
	mu     sync.RWMutex
	byType map[DocType]Transitioner
}

// NewDispatcher constructs an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{byType: make(map[DocType]Transitioner)}
}

// Register binds a document type to its transitioner.
func (d *Dispatcher) Register(t DocType, tr Transitioner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byType[t] = tr
}

// TransitionStatus dispatches to the registered module.
func (d *Dispatcher) TransitionStatus(ctx context.Context, t DocType, docID int64, to Status) error {
	d.mu.RLock()
	tr, ok := d.byType[t]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("ledger: no transitioner for document type %q: %w", t, shared.ErrNotFound)
	}
	return tr.TransitionStatus(ctx, docID, to)
}
