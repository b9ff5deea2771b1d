package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"agenda/config"
	"agenda/di"
	"agenda/shared/logger"
)

func main() {
	cfg := config.Get()

	logger.InitLogger()

	logger.SetLogLevel(cfg)

	app := di.InitializeApp()

	if cfg.Scheduling.SweepEnabled {
		go sweepExpiredHolds(app)
	}

	app.HTTP.Serve()
}

// sweepExpiredHolds periodically retires stale payment holds. Availability
// already ignores them, so this only keeps the table tidy.
func sweepExpiredHolds(app *di.Application) {
	period := time.Duration(app.Config.Scheduling.SweepPeriodMinutes) * time.Minute

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for range ticker.C {
		if err := app.Bookings.SweepExpiredHolds(context.Background()); err != nil {
			log.Error().Err(err).Msg("hold sweep failed")
		}
	}
}
