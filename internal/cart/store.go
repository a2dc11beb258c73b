package cart

import (
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grocerygo/syncstore/internal/kv"
	"github.com/grocerygo/syncstore/internal/notify"
)

// snapshotKey is the fixed key the whole cart blob lives under.
const snapshotKey = "cart_items"

// Store is the single authoritative cart. All mutation goes through its
// methods so the quantity cap and per-product dedup hold exactly once.
// Mutations persist the full snapshot and broadcast the new item count,
// but only when state actually changed. Broadcasts are enqueued while
// the lock is still held, so listeners observe counts in mutation order.
//
// The cart is device-scoped, not user-scoped: it survives sign-out and
// is only emptied by Clear.
type Store struct {
	lg  *zap.Logger
	kv  kv.Store
	hub *notify.Hub

	mu    sync.Mutex
	items []LineItem
}

// NewStore loads the previously persisted snapshot, if any, and returns a
// ready store. A missing or unreadable snapshot yields an empty cart;
// read failures are logged, never raised.
func NewStore(store kv.Store, d *notify.Dispatcher, lg *zap.Logger) *Store {
	s := &Store{
		lg:  lg,
		kv:  store,
		hub: notify.NewHub(d, lg),
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := s.kv.Get(snapshotKey)
	if errors.Is(err, kv.ErrNotFound) {
		return
	}
	if err != nil {
		s.lg.Warn("Loading cart snapshot", zap.Error(err))
		return
	}
	items, err := decodeItems(data)
	if err != nil {
		s.lg.Warn("Decoding cart snapshot", zap.Error(err))
		return
	}
	s.items = items
}

// Add inserts item or, when an entry with the same product id already
// exists, adds the quantities together capped at MaxQuantity. In the
// merge case only the quantity changes; the existing entry keeps its
// price, name and image. A merge that leaves the quantity unchanged
// neither persists nor notifies.
func (s *Store) Add(item LineItem) {
	if item.ProductID == "" {
		return
	}

	s.mu.Lock()
	changed := false
	if idx := s.indexLocked(item.ProductID); idx >= 0 {
		existing := &s.items[idx]
		incoming := item.Quantity
		if incoming <= 0 {
			incoming = 1
		}
		next := existing.Quantity + incoming
		if next > MaxQuantity {
			next = MaxQuantity
		}
		if next != existing.Quantity {
			existing.Quantity = next
			changed = true
		}
	} else {
		item.Quantity = clampQuantity(item.Quantity)
		s.items = append(s.items, item)
		changed = true
	}
	if changed {
		s.persistLocked()
		s.hub.Broadcast(s.itemCountLocked())
	}
	s.mu.Unlock()
}

// UpdateQuantity sets the entry's quantity, capped at MaxQuantity. A
// quantity of zero or less removes the entry. Setting the current
// quantity again is a no-op. An unknown product id with a positive
// quantity creates a bare entry carrying only the id and quantity;
// callers that need price and name on the entry must go through Add.
func (s *Store) UpdateQuantity(productID string, quantity int) {
	if productID == "" {
		return
	}
	if quantity > MaxQuantity {
		quantity = MaxQuantity
	}

	s.mu.Lock()
	idx := s.indexLocked(productID)
	changed := false
	switch {
	case idx >= 0 && quantity <= 0:
		s.items = append(s.items[:idx], s.items[idx+1:]...)
		changed = true
	case idx >= 0 && quantity != s.items[idx].Quantity:
		s.items[idx].Quantity = quantity
		changed = true
	case idx < 0 && quantity > 0:
		s.items = append(s.items, LineItem{ProductID: productID, Quantity: quantity})
		changed = true
	}
	if changed {
		s.persistLocked()
		s.hub.Broadcast(s.itemCountLocked())
	}
	s.mu.Unlock()
}

// Remove deletes the entry if present; nothing persists or notifies when
// the id was not in the cart.
func (s *Store) Remove(productID string) {
	s.mu.Lock()
	idx := s.indexLocked(productID)
	if idx >= 0 {
		s.items = append(s.items[:idx], s.items[idx+1:]...)
		s.persistLocked()
		s.hub.Broadcast(s.itemCountLocked())
	}
	s.mu.Unlock()
}

// Clear empties the cart. An already-empty cart neither persists nor
// notifies.
func (s *Store) Clear() {
	s.mu.Lock()
	if len(s.items) > 0 {
		s.items = nil
		s.persistLocked()
		s.hub.Broadcast(0)
	}
	s.mu.Unlock()
}

// Items returns a copy of the cart in insertion order. Mutating the
// returned slice does not touch the store.
func (s *Store) Items() []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LineItem, len(s.items))
	copy(out, s.items)
	return out
}

// Item returns the entry for productID, if present.
func (s *Store) Item(productID string) (LineItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(productID); idx >= 0 {
		return s.items[idx], true
	}
	return LineItem{}, false
}

// Contains reports whether productID has an entry in the cart.
func (s *Store) Contains(productID string) bool {
	_, ok := s.Item(productID)
	return ok
}

// ItemCount is the sum of quantities across all entries, not the number
// of entries.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemCountLocked()
}

// Total is the sum of line totals across all entries.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for i := range s.items {
		total = total.Add(s.items[i].LineTotal())
	}
	return total
}

// QuantityOf returns the entry's quantity, or 0 when absent.
func (s *Store) QuantityOf(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(productID); idx >= 0 {
		return s.items[idx].Quantity
	}
	return 0
}

// AddListener registers l for item-count notifications. Registering the
// same listener twice is a no-op.
func (s *Store) AddListener(l notify.Listener) {
	s.hub.Add(l)
}

// RemoveListener unregisters l.
func (s *Store) RemoveListener(l notify.Listener) {
	s.hub.Remove(l)
}

func (s *Store) indexLocked(productID string) int {
	for i := range s.items {
		if s.items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) itemCountLocked() int {
	count := 0
	for i := range s.items {
		count += s.items[i].Quantity
	}
	return count
}

// persistLocked writes the full snapshot. Storage failures are logged
// only; in-memory state stays authoritative for the session.
func (s *Store) persistLocked() {
	if err := s.kv.Put(snapshotKey, encodeItems(s.items)); err != nil {
		s.lg.Error("Persisting cart snapshot", zap.Error(err))
	}
}
