package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/openfleet/gt06d/config"
)

const retentionSweepInterval = 24 * time.Hour

// StartRetention periodically deletes telemetry older than the configured
// retention window. days <= 0 disables the sweep.
func StartRetention(ctx context.Context, wg *sync.WaitGroup, store TelemetryStore, days int) {
	log := config.GetLogger(ctx)

	if days <= 0 {
		log.Infof("Telemetry retention sweep disabled.")
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(retentionSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().AddDate(0, 0, -days)
				deleted, err := store.DeleteOlderThan(ctx, cutoff)
				if err != nil {
					log.Errorf("Failed to delete telemetry older than %v. %v", cutoff, err)
					continue
				}
				log.Infof("Deleted %d telemetry records older than %v.", deleted, cutoff)
			}
		}
	}()
}
