// Package wishlist keeps the signed-in user's favorited product ids as a
// local cache converging with a remote document field. Mutations apply
// optimistically, write through an atomic array union/remove, and roll
// back on remote failure; a standing subscription replaces the cache
// wholesale whenever the remote field changes.
package wishlist

import (
	"context"
	"sort"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/grocerygo/syncstore/internal/docstore"
	"github.com/grocerygo/syncstore/internal/notify"
)

const (
	defaultCollection = "users"
	defaultField      = "wishlist"
)

// Sentinel errors for rejected mutations. In both cases the local cache
// is left untouched.
var (
	ErrNotSignedIn    = errors.New("no signed-in user")
	ErrEmptyProductID = errors.New("empty product id")
)

// Config locates the remote field holding the membership array. Zero
// values fall back to the users collection's wishlist field.
type Config struct {
	Collection string
	Field      string
}

// Store is the authoritative local wishlist cache for the current user.
// Membership reads never touch the network.
type Store struct {
	docs       docstore.Store
	ident      docstore.Identity
	hub        *notify.Hub
	lg         *zap.Logger
	collection string
	field      string

	mu      sync.Mutex
	members map[string]struct{}
	sub     docstore.Subscription
}

// NewStore builds the store and, when a user is signed in, kicks off the
// initial one-shot load and the standing subscription. Load and
// subscription failures are logged; the cache simply stays empty until
// the subscription delivers.
func NewStore(ctx context.Context, cfg Config, docs docstore.Store, ident docstore.Identity, d *notify.Dispatcher, lg *zap.Logger) *Store {
	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}
	if cfg.Field == "" {
		cfg.Field = defaultField
	}
	s := &Store{
		docs:       docs,
		ident:      ident,
		hub:        notify.NewHub(d, lg),
		lg:         lg,
		collection: cfg.Collection,
		field:      cfg.Field,
		members:    make(map[string]struct{}),
	}

	uid, ok := s.ident.CurrentUserID()
	if !ok {
		lg.Warn("No signed-in user, wishlist not loaded")
		return s
	}
	go s.loadOnce(ctx, uid)
	s.watch(ctx, uid)
	return s
}

// loadOnce populates the cache as fast as possible, ahead of the first
// subscription delivery. An absent field is initialized to an empty
// array so later set operations have a target.
func (s *Store) loadOnce(ctx context.Context, uid string) {
	val, err := s.docs.ReadField(ctx, s.collection, uid, s.field)
	if errors.Is(err, docstore.ErrNotFound) {
		s.lg.Warn("User document does not exist", zap.String("user_id", uid))
		return
	}
	if err != nil {
		s.lg.Error("Loading wishlist", zap.String("user_id", uid), zap.Error(err))
		return
	}
	if val == nil {
		if err := s.docs.UpdateField(ctx, s.collection, uid, s.field, docstore.Set([]string{})); err != nil {
			s.lg.Error("Initializing wishlist field", zap.String("user_id", uid), zap.Error(err))
		}
		return
	}

	s.replace(stringIDs(val))
}

// watch (re)establishes the standing subscription on the user document.
func (s *Store) watch(ctx context.Context, uid string) {
	s.mu.Lock()
	if s.sub != nil {
		s.sub.Stop()
		s.sub = nil
	}
	s.mu.Unlock()

	sub, err := s.docs.Subscribe(ctx, s.collection, uid, s.onSnapshot)
	if err != nil {
		s.lg.Error("Subscribing to wishlist changes", zap.String("user_id", uid), zap.Error(err))
		return
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
}

// onSnapshot applies a remote document state. The payload fully replaces
// the local cache: last writer wins at the subscription layer, even over
// an in-flight optimistic mutation.
func (s *Store) onSnapshot(doc map[string]any) {
	raw, ok := doc[s.field]
	if !ok || raw == nil {
		return
	}
	s.replace(stringIDs(raw))
}

// replace swaps the whole membership set. The broadcast is enqueued
// under the lock so listeners observe counts in mutation order.
func (s *Store) replace(ids []string) {
	s.mu.Lock()
	s.members = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.members[id] = struct{}{}
	}
	s.hub.Broadcast(len(s.members))
	s.mu.Unlock()
}

// IsMember reports membership from the local cache; it never blocks and
// never queries the network.
func (s *Store) IsMember(productID string) bool {
	if productID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[productID]
	return ok
}

// MemberIDs returns a sorted copy of the current membership.
func (s *Store) MemberIDs() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.members))
	for id := range s.members {
		out = append(out, id)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

// Count is the cardinality of the current membership.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// Add marks productID favorited. The cache mutates and observers are
// notified before the remote write resolves; a failed write rolls the
// cache back and notifies again. The returned channel yields the remote
// outcome exactly once and is then closed.
func (s *Store) Add(ctx context.Context, productID string) <-chan error {
	return s.mutate(ctx, productID, true)
}

// Remove unmarks productID. Same optimistic contract as Add.
func (s *Store) Remove(ctx context.Context, productID string) <-chan error {
	return s.mutate(ctx, productID, false)
}

// Toggle flips membership for productID based on the local cache.
func (s *Store) Toggle(ctx context.Context, productID string) <-chan error {
	if s.IsMember(productID) {
		return s.Remove(ctx, productID)
	}
	return s.Add(ctx, productID)
}

func (s *Store) mutate(ctx context.Context, productID string, add bool) <-chan error {
	done := make(chan error, 1)

	uid, ok := s.ident.CurrentUserID()
	if !ok {
		done <- ErrNotSignedIn
		close(done)
		return done
	}
	if productID == "" {
		done <- ErrEmptyProductID
		close(done)
		return done
	}

	s.mu.Lock()
	_, wasMember := s.members[productID]
	if add {
		s.members[productID] = struct{}{}
	} else {
		delete(s.members, productID)
	}
	s.hub.Broadcast(len(s.members))
	s.mu.Unlock()

	op := docstore.ArrayUnion(productID)
	if !add {
		op = docstore.ArrayRemove(productID)
	}

	go func() {
		defer close(done)
		err := s.docs.UpdateField(ctx, s.collection, uid, s.field, op)
		if err == nil {
			done <- nil
			return
		}

		s.lg.Error("Wishlist update failed, rolling back",
			zap.String("user_id", uid),
			zap.String("product_id", productID),
			zap.Error(err))

		s.mu.Lock()
		if wasMember {
			s.members[productID] = struct{}{}
		} else {
			delete(s.members, productID)
		}
		s.hub.Broadcast(len(s.members))
		s.mu.Unlock()

		done <- errors.Wrap(err, "update wishlist")
	}()
	return done
}

// Reload restarts the standing subscription, guaranteeing fresh state
// after sign-in. Without a signed-in user it clears instead.
func (s *Store) Reload(ctx context.Context) {
	uid, ok := s.ident.CurrentUserID()
	if !ok {
		s.lg.Warn("No signed-in user, clearing wishlist")
		s.Clear()
		return
	}
	s.watch(ctx, uid)
}

// Clear empties the cache and cancels the subscription; used on
// sign-out.
func (s *Store) Clear() {
	s.mu.Lock()
	s.members = make(map[string]struct{})
	if s.sub != nil {
		s.sub.Stop()
		s.sub = nil
	}
	s.hub.Broadcast(0)
	s.mu.Unlock()
}

// AddListener registers l and immediately primes it with the current
// count. Registering the same listener twice is a no-op.
func (s *Store) AddListener(l notify.Listener) {
	s.hub.Add(l)
	s.hub.NotifyOne(l, s.Count())
}

// RemoveListener unregisters l.
func (s *Store) RemoveListener(l notify.Listener) {
	s.hub.Remove(l)
}

// stringIDs coerces a raw field value into product ids. Both []string
// and []any payloads appear, depending on the backend codec.
func stringIDs(val any) []string {
	switch v := val.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if id, ok := item.(string); ok {
				out = append(out, id)
			}
		}
		return out
	default:
		return nil
	}
}
