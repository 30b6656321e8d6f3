// Command api-server runs the POS order API.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/phongit-kha/pos-lmwn/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadConfig()
		if err != nil {
			return err
		}
		return appkg.Run(ctx, lg, appkg.Telemetry{
			TracerProvider: m.TracerProvider(),
			MeterProvider:  m.MeterProvider(),
		}, cfg)
	})
}
