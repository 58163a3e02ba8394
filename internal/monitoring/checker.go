package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/geobeat/gdi-cli/internal/config"
	"github.com/geobeat/gdi-cli/internal/store"
)

const defaultCheckInterval = 5 * time.Minute

// Checker periodically snapshots the run archive, republishes the latest
// scores as gauges and raises alerts.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	metrics   *Metrics
	interval  time.Duration
	lookback  int
	log       *zap.Logger
}

// NewChecker builds a Checker over st. metrics may be nil.
func NewChecker(st store.Store, metrics *Metrics, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: NewCollector(st, cfg.GDIFloor),
		alerter:   NewAlerter(cfg),
		metrics:   metrics,
		interval:  interval,
		lookback:  cfg.LookbackWindowHours,
		log:       zap.L().Named("monitoring"),
	}
}

// Run checks once, then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.log.Info("alert checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if _, err := c.Check(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("check failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			c.log.Info("alert checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check runs a single pass and returns the alerts that fired, whether or not
// they were delivered.
func (c *Checker) Check(ctx context.Context) ([]Alert, error) {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		return nil, err
	}
	for _, sc := range snap.Scores {
		c.metrics.SetScores(sc.Network, sc.GDI, sc.PDI, sc.JDI, sc.IHI)
	}

	alerts := c.alerter.Evaluate(snap)
	c.metrics.ObserveAlerts(alerts)

	fresh := c.alerter.Pending(alerts)
	if len(fresh) == 0 {
		c.log.Debug("no new alerts", zap.Int("firing", len(alerts)))
		return alerts, nil
	}

	sent, err := c.alerter.Notify(ctx, fresh)
	if err != nil {
		c.log.Warn("alert delivery failed", zap.Int("pending", len(fresh)), zap.Error(err))
	}
	c.log.Info("alert check complete",
		zap.Int("firing", len(alerts)),
		zap.Int("sent", sent),
	)
	return alerts, nil
}
