// Package memory provides in-memory implementations of the storage
// interfaces for unit tests. The transaction manager serializes
// writers and rolls the store back to a snapshot when the
// transactional function fails.
package memory

import (
	"context"
	"sync"

	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/tx"
	"lotledger/internal/domain/auth"
	"lotledger/internal/domain/production"
)

// Store holds all in-memory state.
type Store struct {
	mu          sync.Mutex
	batches     map[id.ID]*entity.StockBatch
	changes     []entity.StockChange
	productions map[id.ID]*production.Production
	users       map[id.ID]*auth.User
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		batches:     make(map[id.ID]*entity.StockBatch),
		productions: make(map[id.ID]*production.Production),
		users:       make(map[id.ID]*auth.User),
	}
}

// Batches returns the batch repository view.
func (s *Store) Batches() *BatchRepo { return &BatchRepo{store: s} }

// Ledger returns the ledger repository view.
func (s *Store) Ledger() *LedgerRepo { return &LedgerRepo{store: s} }

// Productions returns the production repository view.
func (s *Store) Productions() *ProductionRepo { return &ProductionRepo{store: s} }

// Users returns the user repository view.
func (s *Store) Users() *UserRepo { return &UserRepo{store: s} }

// snapshot deep-copies the mutable state.
type snapshot struct {
	batches     map[id.ID]*entity.StockBatch
	changes     []entity.StockChange
	productions map[id.ID]*production.Production
	users       map[id.ID]*auth.User
}

func (s *Store) takeSnapshot() snapshot {
	snap := snapshot{
		batches:     make(map[id.ID]*entity.StockBatch, len(s.batches)),
		changes:     make([]entity.StockChange, len(s.changes)),
		productions: make(map[id.ID]*production.Production, len(s.productions)),
		users:       make(map[id.ID]*auth.User, len(s.users)),
	}
	for k, v := range s.batches {
		snap.batches[k] = cloneBatch(v)
	}
	copy(snap.changes, s.changes)
	for k, v := range s.productions {
		snap.productions[k] = cloneProduction(v)
	}
	for k, v := range s.users {
		snap.users[k] = cloneUser(v)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.batches = snap.batches
	s.changes = snap.changes
	s.productions = snap.productions
	s.users = snap.users
}

type txKey struct{}

var _ tx.Manager = (*TxManager)(nil)

// TxManager serializes transactional units over the store. A failing
// function restores the pre-transaction snapshot, giving the same
// all-or-nothing behavior the Postgres manager provides.
type TxManager struct {
	store *Store
}

// NewTxManager creates a transaction manager over the store.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// RunInTransaction executes fn atomically. A nested call reuses the
// transaction already held by the context.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx, ok := ctx.Value(txKey{}).(bool); ok && inTx {
		return fn(ctx)
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	snap := m.store.takeSnapshot()
	txCtx := context.WithValue(ctx, txKey{}, true)

	if err := fn(txCtx); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

// RunAtomic executes fn atomically even when nested: inside an outer
// transaction a failure restores the snapshot taken when fn started,
// leaving the outer unit's earlier writes intact. Matches the
// savepoint behavior of the Postgres manager.
func (m *TxManager) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx, ok := ctx.Value(txKey{}).(bool); ok && inTx {
		snap := m.store.takeSnapshot()
		if err := fn(ctx); err != nil {
			m.store.restore(snap)
			return err
		}
		return nil
	}
	return m.RunInTransaction(ctx, fn)
}

// lock acquires the store mutex unless the context already runs inside
// a transaction (which holds the lock for its whole extent).
func (s *Store) lock(ctx context.Context) func() {
	if inTx, ok := ctx.Value(txKey{}).(bool); ok && inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func cloneBatch(b *entity.StockBatch) *entity.StockBatch {
	c := *b
	if b.SupplierRef != nil {
		ref := *b.SupplierRef
		c.SupplierRef = &ref
	}
	return &c
}

func cloneChange(ch entity.StockChange) entity.StockChange {
	c := ch
	if ch.Consumptions != nil {
		c.Consumptions = append([]entity.BatchConsumption(nil), ch.Consumptions...)
	}
	if ch.LegacyUnitCost != nil {
		cost := *ch.LegacyUnitCost
		c.LegacyUnitCost = &cost
	}
	if ch.SupplierRef != nil {
		ref := *ch.SupplierRef
		c.SupplierRef = &ref
	}
	if ch.IsOwnPurchase != nil {
		v := *ch.IsOwnPurchase
		c.IsOwnPurchase = &v
	}
	if ch.IsCredit != nil {
		v := *ch.IsCredit
		c.IsCredit = &v
	}
	if ch.TransferRef != nil {
		ref := *ch.TransferRef
		c.TransferRef = &ref
	}
	return c
}

func cloneProduction(p *production.Production) *production.Production {
	c := *p
	c.Materials = append([]production.Material(nil), p.Materials...)
	c.Charges = append([]production.Charge(nil), p.Charges...)
	c.Articles = make([]production.Article, len(p.Articles))
	for i, a := range p.Articles {
		c.Articles[i] = a
		c.Articles[i].Materials = append([]production.Material(nil), a.Materials...)
	}
	return &c
}

func cloneUser(u *auth.User) *auth.User {
	c := *u
	c.Roles = append([]auth.Role(nil), u.Roles...)
	return &c
}
