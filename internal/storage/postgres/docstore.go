// Package postgres implements the document-store port on PostgreSQL.
// Each document is one JSONB row keyed by (collection, doc_id); array
// set operations run as read-modify-write inside a row-locked
// transaction, and subscriptions ride on LISTEN/NOTIFY.
package postgres

import (
	"context"
	"reflect"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/grocerygo/syncstore/db"
	"github.com/grocerygo/syncstore/internal/docstore"
)

// notifyChannel carries "<collection>/<doc_id>" payloads for every
// committed document update.
const notifyChannel = "document_changes"

// NewPool creates a pgxpool.Pool configured with shopspring/decimal
// support, so numeric document payloads scan losslessly.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing database config")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating connection pool")
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "running migrations")
	}
	return nil
}

// DocStore implements docstore.Store backed by PostgreSQL.
type DocStore struct {
	pool *pgxpool.Pool
	lg   *zap.Logger
}

var _ docstore.Store = (*DocStore)(nil)

// NewDocStore returns a DocStore that uses the given pool.
func NewDocStore(pool *pgxpool.Pool, lg *zap.Logger) *DocStore {
	return &DocStore{pool: pool, lg: lg}
}

// EnsureDocument creates an empty document if none exists yet.
func (s *DocStore) EnsureDocument(ctx context.Context, collection, docID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (collection, doc_id) VALUES ($1, $2)
		 ON CONFLICT (collection, doc_id) DO NOTHING`,
		collection, docID)
	return errors.Wrapf(err, "ensure %s/%s", collection, docID)
}

// ReadField returns one field of the document, or (nil, nil) when the
// document exists without the field.
func (s *DocStore) ReadField(ctx context.Context, collection, docID, field string) (any, error) {
	var data map[string]any
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND doc_id = $2`,
		collection, docID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s/%s", collection, docID)
	}
	return data[field], nil
}

// UpdateField applies op under a row lock so concurrent set-membership
// updates never lose writes, then notifies subscribers.
func (s *DocStore) UpdateField(ctx context.Context, collection, docID, field string, op docstore.Op) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var data map[string]any
	err = tx.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND doc_id = $2 FOR UPDATE`,
		collection, docID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "lock %s/%s", collection, docID)
	}
	if data == nil {
		data = make(map[string]any)
	}

	data[field] = applyOp(data[field], op)

	if _, err := tx.Exec(ctx,
		`UPDATE documents SET data = $3, updated_at = now()
		 WHERE collection = $1 AND doc_id = $2`,
		collection, docID, data); err != nil {
		return errors.Wrapf(err, "write %s/%s", collection, docID)
	}
	if _, err := tx.Exec(ctx,
		`SELECT pg_notify($1, $2)`, notifyChannel, collection+"/"+docID); err != nil {
		return errors.Wrap(err, "notify")
	}

	return errors.Wrap(tx.Commit(ctx), "commit")
}

// applyOp computes the field's next value. Array values come back from
// JSONB as []any; elements are matched by decoded JSON value.
func applyOp(current any, op docstore.Op) any {
	switch op.Kind {
	case docstore.OpArrayUnion:
		arr := anySlice(current)
		for _, v := range arr {
			if sameValue(v, op.Value) {
				return arr
			}
		}
		return append(arr, op.Value)
	case docstore.OpArrayRemove:
		arr := anySlice(current)
		out := make([]any, 0, len(arr))
		for _, v := range arr {
			if !sameValue(v, op.Value) {
				out = append(out, v)
			}
		}
		return out
	default:
		return op.Value
	}
}

// sameValue compares decoded JSON values. Interface equality would panic
// on non-comparable elements such as nested objects or arrays.
func sameValue(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func anySlice(val any) []any {
	switch v := val.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out
	default:
		return nil
	}
}

// Subscribe holds a dedicated connection on LISTEN and re-reads the
// document after every matching notification. The current state is
// delivered first.
func (s *DocStore) Subscribe(ctx context.Context, collection, docID string, fn func(doc map[string]any)) (docstore.Subscription, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire listen connection")
	}
	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		conn.Release()
		return nil, errors.Wrap(err, "listen")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel}
	id := uuid.New().String()
	target := collection + "/" + docID

	go func() {
		defer conn.Release()
		s.deliver(watchCtx, collection, docID, fn)
		for {
			n, err := conn.Conn().WaitForNotification(watchCtx)
			if err != nil {
				if watchCtx.Err() != nil {
					return
				}
				s.lg.Error("Document watch terminated",
					zap.String("subscription", id),
					zap.String("target", target),
					zap.Error(err))
				return
			}
			if n.Payload != target {
				continue
			}
			s.deliver(watchCtx, collection, docID, fn)
		}
	}()
	return sub, nil
}

func (s *DocStore) deliver(ctx context.Context, collection, docID string, fn func(doc map[string]any)) {
	var data map[string]any
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND doc_id = $2`,
		collection, docID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return
	}
	if err != nil {
		if ctx.Err() == nil {
			s.lg.Error("Reading document for delivery",
				zap.String("collection", collection),
				zap.String("doc_id", docID),
				zap.Error(err))
		}
		return
	}
	fn(data)
}

type subscription struct {
	once   sync.Once
	cancel context.CancelFunc
}

func (s *subscription) Stop() {
	s.once.Do(s.cancel)
}
