package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/geobeat/gdi-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertAnalysisFailureRate AlertType = "analysis_failure_rate"
	AlertGDIBelowFloor       AlertType = "gdi_below_floor"
)

// minFinishedRuns is the number of finished runs needed before the failure
// rate is trusted.
const minFinishedRuns = 5

// Alert is one breached threshold. Key identifies the condition so that an
// unchanged condition is only delivered once.
type Alert struct {
	Type      AlertType      `json:"type"`
	Key       string         `json:"key"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// rule inspects a snapshot and reports an alert when its threshold is breached.
type rule func(cfg config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool)

var rules = []rule{failureRateRule, belowFloorRule}

func failureRateRule(cfg config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool) {
	finished := snap.RunsComplete + snap.RunsFailed
	if finished < minFinishedRuns || snap.FailRate <= cfg.FailureRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertAnalysisFailureRate,
		Key:      string(AlertAnalysisFailureRate),
		Severity: "high",
		Message: fmt.Sprintf("%d of %d analyses failed in the last %dh (%.1f%%, limit %.1f%%)",
			snap.RunsFailed, finished, snap.LookbackHours,
			snap.FailRate*100, cfg.FailureRateThreshold*100),
		Details: map[string]any{
			"failure_rate": snap.FailRate,
			"threshold":    cfg.FailureRateThreshold,
			"failed":       snap.RunsFailed,
			"finished":     finished,
		},
	}, true
}

func belowFloorRule(_ config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool) {
	if len(snap.BelowFloor) == 0 {
		return Alert{}, false
	}
	names := append([]string(nil), snap.BelowFloor...)
	sort.Strings(names)

	scores := make(map[string]float64, len(snap.Scores))
	for _, sc := range snap.Scores {
		scores[sc.Network] = sc.GDI
	}
	below := make(map[string]float64, len(names))
	for _, n := range names {
		below[n] = scores[n]
	}

	list := strings.Join(names, ", ")
	return Alert{
		Type:     AlertGDIBelowFloor,
		Key:      string(AlertGDIBelowFloor) + ":" + list,
		Severity: "medium",
		Message:  fmt.Sprintf("GDI under %.1f for %d network(s): %s", snap.GDIFloor, len(names), list),
		Details: map[string]any{
			"floor":    snap.GDIFloor,
			"networks": below,
		},
	}, true
}

// Alerter evaluates snapshots against the configured thresholds and posts
// new alerts to a webhook. Conditions already delivered are held back until
// they clear.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client

	mu        sync.Mutex
	delivered map[string]bool
}

// NewAlerter returns an Alerter for cfg.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:       cfg,
		client:    &http.Client{Timeout: 10 * time.Second},
		delivered: make(map[string]bool),
	}
}

// Evaluate returns every alert whose rule fires for snap.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	now := time.Now().UTC()
	var alerts []Alert
	for _, r := range rules {
		if al, ok := r(a.cfg, snap); ok {
			al.Timestamp = now
			alerts = append(alerts, al)
		}
	}
	return alerts
}

// Pending drops alerts whose condition was already delivered and forgets
// conditions that are no longer firing.
func (a *Alerter) Pending(alerts []Alert) []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()

	firing := make(map[string]bool, len(alerts))
	var fresh []Alert
	for _, al := range alerts {
		firing[al.Key] = true
		if !a.delivered[al.Key] {
			fresh = append(fresh, al)
		}
	}
	for k := range a.delivered {
		if !firing[k] {
			delete(a.delivered, k)
		}
	}
	return fresh
}

type webhookPayload struct {
	Source string  `json:"source"`
	Alerts []Alert `json:"alerts"`
}

// Notify posts alerts to the webhook as a single batch and returns how many
// were delivered. Without a webhook URL nothing is sent.
func (a *Alerter) Notify(ctx context.Context, alerts []Alert) (int, error) {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0, nil
	}

	body, err := json.Marshal(webhookPayload{Source: "gdi", Alerts: alerts})
	if err != nil {
		return 0, eris.Wrap(err, "monitoring: encode alerts")
	}
	if err := a.post(ctx, body); err != nil {
		return 0, err
	}

	a.mu.Lock()
	for _, al := range alerts {
		a.delivered[al.Key] = true
	}
	a.mu.Unlock()

	for _, al := range alerts {
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(al.Type)),
			zap.String("severity", al.Severity),
		)
	}
	return len(alerts), nil
}

func (a *Alerter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post webhook")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook responded %s", resp.Status)
	}
	return nil
}
