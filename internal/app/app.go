// Package app wires the sync core against a real backend for the
// headless daemon: dispatcher, local snapshot store, document-store
// adapter, both stores, and the health endpoints.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/grocerygo/syncstore/internal/cart"
	"github.com/grocerygo/syncstore/internal/docstore"
	"github.com/grocerygo/syncstore/internal/notify"
	fsadapter "github.com/grocerygo/syncstore/internal/storage/firestore"
	"github.com/grocerygo/syncstore/internal/storage/localfile"
	"github.com/grocerygo/syncstore/internal/storage/postgres"
	"github.com/grocerygo/syncstore/internal/wishlist"
	"github.com/grocerygo/syncstore/pkg/health"
	"github.com/grocerygo/syncstore/pkg/httpmiddleware"
)

// firestoreReadiness probes the backend with a field read. A missing
// document still proves connectivity, so ErrNotFound counts as healthy.
// Without a configured user the probe targets a fixed sentinel document;
// an empty document path would make the read fail unconditionally.
func firestoreReadiness(store docstore.Store, cfg *Config) health.CheckFunc {
	docID := cfg.UserID
	if docID == "" {
		docID = "_readyz"
	}
	return func(ctx context.Context) error {
		_, err := store.ReadField(ctx, cfg.UsersCollection, docID, cfg.WishlistField)
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		return err
	}
}

// Run creates all dependencies and blocks until ctx is cancelled. It is
// the single wiring point for the daemon.
func Run(ctx context.Context, lg *zap.Logger, _ *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("backend", cfg.Backend))

	dispatcher := notify.NewDispatcher(lg)

	local, err := localfile.New(cfg.CartDir)
	if err != nil {
		return errors.Wrap(err, "create local store")
	}

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	var docs docstore.Store
	switch cfg.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}

		store := postgres.NewDocStore(pool, lg)
		if cfg.UserID != "" {
			if err := store.EnsureDocument(ctx, cfg.UsersCollection, cfg.UserID); err != nil {
				return errors.Wrap(err, "ensure user document")
			}
		}
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
		docs = store

	case "firestore":
		client, err := fsadapter.NewClient(ctx, cfg.FirestoreProject, cfg.CredentialsFile)
		if err != nil {
			return errors.Wrap(err, "create firestore client")
		}
		defer func() { _ = client.Close() }()

		store := fsadapter.NewDocStore(client, lg)
		healthSvc.AddReadinessCheck("firestore", 5*time.Second, firestoreReadiness(store, cfg))
		docs = store

	default:
		return errors.Errorf("unknown backend %q", cfg.Backend)
	}

	ident := docstore.StaticIdentity(cfg.UserID)

	cartStore := cart.NewStore(local, dispatcher, lg)
	wishStore := wishlist.NewStore(ctx, wishlist.Config{
		Collection: cfg.UsersCollection,
		Field:      cfg.WishlistField,
	}, docs, ident, dispatcher, lg)

	// Mirror store activity into the log so operators can watch sync.
	cartStore.AddListener(notify.Callback(func(count int) {
		lg.Info("Cart updated", zap.Int("item_count", count))
	}))
	wishStore.AddListener(notify.Callback(func(count int) {
		lg.Info("Wishlist updated", zap.Int("count", count))
	}))

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		Addr:              cfg.Addr,
		// Recovery runs innermost so its log carries the request id and
		// the injected logger.
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
		),
	}
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		lg.Info("Health endpoints listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "health server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		wishStore.Clear()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Health server shutdown", zap.Error(err))
		}
		return gctx.Err()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
