// Package docstore defines the remote document-store and identity ports
// consumed by the wishlist store. Adapters translate these calls onto a
// concrete backend (Cloud Firestore, PostgreSQL).
package docstore

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when the addressed document does not exist.
var ErrNotFound = errors.New("document not found")

// OpKind enumerates the supported field update operations.
type OpKind int

const (
	// OpSet replaces the field value.
	OpSet OpKind = iota
	// OpArrayUnion adds the value to an array field if not already present.
	OpArrayUnion
	// OpArrayRemove removes all occurrences of the value from an array field.
	OpArrayRemove
)

// Op is a field-level update: a plain set, or an atomic set-membership
// add/remove on an array field.
type Op struct {
	Kind  OpKind
	Value any
}

// Set builds a replace-value operation.
func Set(v any) Op { return Op{Kind: OpSet, Value: v} }

// ArrayUnion builds an add-to-set operation.
func ArrayUnion(v any) Op { return Op{Kind: OpArrayUnion, Value: v} }

// ArrayRemove builds a remove-from-set operation.
func ArrayRemove(v any) Op { return Op{Kind: OpArrayRemove, Value: v} }

// Store is the remote document capability: field reads, field-level
// atomic updates, and push-style document subscriptions.
type Store interface {
	// ReadField returns the field's current value, or (nil, nil) when the
	// document exists without the field. A missing document yields
	// ErrNotFound.
	ReadField(ctx context.Context, collection, docID, field string) (any, error)

	// UpdateField applies op to one field of the document.
	UpdateField(ctx context.Context, collection, docID, field string, op Op) error

	// Subscribe delivers the document's current state and every subsequent
	// state to fn. fn runs on the adapter's own goroutine; callers are
	// responsible for marshalling into their own delivery context.
	Subscribe(ctx context.Context, collection, docID string, fn func(doc map[string]any)) (Subscription, error)
}

// Subscription is a standing document watch handle.
type Subscription interface {
	// Stop cancels the watch. Safe to call more than once.
	Stop()
}

// Identity reports the currently signed-in user.
type Identity interface {
	CurrentUserID() (string, bool)
}

// StaticIdentity is an Identity fixed at construction time. The empty
// string means nobody is signed in.
type StaticIdentity string

// CurrentUserID implements Identity.
func (s StaticIdentity) CurrentUserID() (string, bool) {
	return string(s), s != ""
}
