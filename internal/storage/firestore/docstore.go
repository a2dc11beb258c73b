// Package firestore adapts a Cloud Firestore client to the document
// store port. Array field updates map to Firestore's native ArrayUnion
// and ArrayRemove; subscriptions ride on document snapshot listeners.
package firestore

import (
	"context"
	"sync"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/grocerygo/syncstore/internal/docstore"
)

// NewClient builds a Firestore client for projectID. credentialsFile is
// optional; without it the ambient application-default credentials apply.
func NewClient(ctx context.Context, projectID, credentialsFile string) (*firestore.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "init firebase app")
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "init firestore client")
	}
	return client, nil
}

// DocStore implements docstore.Store on Cloud Firestore.
type DocStore struct {
	client *firestore.Client
	lg     *zap.Logger
}

var _ docstore.Store = (*DocStore)(nil)

// NewDocStore wraps an existing client. The caller keeps ownership of
// the client's lifecycle.
func NewDocStore(client *firestore.Client, lg *zap.Logger) *DocStore {
	return &DocStore{client: client, lg: lg}
}

// ReadField fetches one document and extracts the field. A document
// without the field yields (nil, nil).
func (s *DocStore) ReadField(ctx context.Context, collection, docID, field string) (any, error) {
	snap, err := s.client.Collection(collection).Doc(docID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s/%s", collection, docID)
	}
	val, err := snap.DataAt(field)
	if err != nil {
		// DataAt errors only when the field path is absent.
		return nil, nil
	}
	return val, nil
}

// UpdateField applies op to one field of the document.
func (s *DocStore) UpdateField(ctx context.Context, collection, docID, field string, op docstore.Op) error {
	var value any
	switch op.Kind {
	case docstore.OpArrayUnion:
		value = firestore.ArrayUnion(op.Value)
	case docstore.OpArrayRemove:
		value = firestore.ArrayRemove(op.Value)
	default:
		value = op.Value
	}

	_, err := s.client.Collection(collection).Doc(docID).Update(ctx, []firestore.Update{
		{Path: field, Value: value},
	})
	if status.Code(err) == codes.NotFound {
		return docstore.ErrNotFound
	}
	return errors.Wrapf(err, "update %s/%s", collection, docID)
}

// Subscribe starts a snapshot listener on the document. Deliveries run
// on the watch goroutine until Stop or ctx cancellation.
func (s *DocStore) Subscribe(ctx context.Context, collection, docID string, fn func(doc map[string]any)) (docstore.Subscription, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	iter := s.client.Collection(collection).Doc(docID).Snapshots(watchCtx)
	sub := &subscription{cancel: cancel, iter: iter}

	go func() {
		for {
			snap, err := iter.Next()
			if err != nil {
				if watchCtx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				s.lg.Error("Document watch terminated",
					zap.String("collection", collection),
					zap.String("doc_id", docID),
					zap.Error(err))
				return
			}
			if !snap.Exists() {
				continue
			}
			fn(snap.Data())
		}
	}()
	return sub, nil
}

type subscription struct {
	once   sync.Once
	cancel context.CancelFunc
	iter   *firestore.DocumentSnapshotIterator
}

func (s *subscription) Stop() {
	s.once.Do(func() {
		s.cancel()
		s.iter.Stop()
	})
}
