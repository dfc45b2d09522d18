package inventory

import (
	"context"

	"go.uber.org/zap"
)

// Notifier persists alert notification records. Failures are logged by the
// monitor, never propagated into order flow.
type Notifier interface {
	CreateAlert(ctx context.Context, a LowStockAlert) error
}

// EmailSender delivers critical alert emails. Fire-and-forget from the
// monitor's perspective.
type EmailSender interface {
	SendAlertEmail(ctx context.Context, alerts []LowStockAlert) error
}

// AlertMonitor scans stock levels against configured thresholds. It reads
// the same store the Manager writes but never mutates it.
type AlertMonitor struct {
	Store         StockStore
	LowThreshold  int
	CritThreshold int
	Notifier      Notifier
	Email         EmailSender
	Log           *zap.Logger
}

// Classify maps available stock to an alert level; ok=false means no alert.
func (am *AlertMonitor) Classify(available int) (AlertLevel, bool) {
	switch {
	case available <= 0:
		return AlertOutOfStock, true
	case available <= am.CritThreshold:
		return AlertCritical, true
	case available <= am.LowThreshold:
		return AlertLow, true
	default:
		return "", false
	}
}

// CheckLowStockAlerts scans all products and returns the active alerts.
func (am *AlertMonitor) CheckLowStockAlerts(ctx context.Context) ([]LowStockAlert, error) {
	products, err := am.Store.ListProducts(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list products", Err: err}
	}

	var alerts []LowStockAlert
	for _, p := range products {
		avail := p.Available()
		level, ok := am.Classify(avail)
		if !ok {
			continue
		}
		threshold := am.LowThreshold
		switch level {
		case AlertCritical:
			threshold = am.CritThreshold
		case AlertOutOfStock:
			threshold = 0
		}
		alerts = append(alerts, LowStockAlert{
			ProductID:    p.ID,
			SKU:          p.SKU,
			CurrentStock: p.CurrentStock,
			Available:    avail,
			Threshold:    threshold,
			Level:        level,
		})
	}
	return alerts, nil
}

// Run performs one full cycle: scan, persist notification records, email the
// critical slice. Collaborator failures are logged and never fail the scan.
func (am *AlertMonitor) Run(ctx context.Context) ([]LowStockAlert, error) {
	alerts, err := am.CheckLowStockAlerts(ctx)
	if err != nil {
		return nil, err
	}

	for _, a := range alerts {
		if am.Notifier == nil {
			break
		}
		if err := am.Notifier.CreateAlert(ctx, a); err != nil {
			am.Log.Warn("create alert failed",
				zap.String("product_id", a.ProductID),
				zap.String("level", string(a.Level)),
				zap.Error(err))
		}
	}

	am.sendCriticalAlertEmails(ctx, alerts)
	return alerts, nil
}

func (am *AlertMonitor) sendCriticalAlertEmails(ctx context.Context, alerts []LowStockAlert) {
	if am.Email == nil {
		return
	}
	var critical []LowStockAlert
	for _, a := range alerts {
		if a.Level == AlertCritical || a.Level == AlertOutOfStock {
			critical = append(critical, a)
		}
	}
	if len(critical) == 0 {
		return
	}
	if err := am.Email.SendAlertEmail(ctx, critical); err != nil {
		am.Log.Warn("alert email failed", zap.Int("alerts", len(critical)), zap.Error(err))
	}
}
