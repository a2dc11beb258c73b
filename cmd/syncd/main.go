// Command syncd runs the cart/wishlist sync core headlessly against a
// real document-store backend, exposing health probes. Useful for
// exercising convergence behavior without a mobile client attached.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/grocerygo/syncstore/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadConfig()
		if err != nil {
			return err
		}
		return appkg.Run(ctx, lg, m, cfg)
	})
}
