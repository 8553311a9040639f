package advisor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"mypharma/backend/internal/cache"
	"mypharma/backend/internal/domain"
)

const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Advisor scores inventory rows for restocking and expiry attention.
type Advisor struct {
	cache             cache.Cache
	cacheTTL          time.Duration
	lowStockThreshold int
	expiryWarningDays int
	now               func() time.Time
}

func New(cacheStore cache.Cache, cacheTTL time.Duration, lowStockThreshold int, expiryWarningDays int) *Advisor {
	if cacheStore == nil {
		cacheStore = cache.Noop{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	if lowStockThreshold <= 0 {
		lowStockThreshold = 150
	}
	if expiryWarningDays <= 0 {
		expiryWarningDays = 60
	}

	return &Advisor{
		cache:             cacheStore,
		cacheTTL:          cacheTTL,
		lowStockThreshold: lowStockThreshold,
		expiryWarningDays: expiryWarningDays,
		now:               time.Now,
	}
}

func CacheKey(accountID string) string {
	return "pharmacy:alerts:" + accountID
}

// Alerts serves the cached report for the account, computing it from load on
// a miss. Cache failures fall through to a fresh computation.
func (a *Advisor) Alerts(ctx context.Context, accountID string, load func(ctx context.Context) ([]domain.InventoryItem, error)) (domain.InventoryAlertReport, error) {
	var cached domain.InventoryAlertReport
	if hit, err := a.cache.Get(ctx, CacheKey(accountID), &cached); err == nil && hit {
		return cached, nil
	}

	items, err := load(ctx)
	if err != nil {
		return domain.InventoryAlertReport{}, err
	}
	return a.Refresh(ctx, accountID, items), nil
}

// Refresh recomputes the report and stores it under the account's cache key.
func (a *Advisor) Refresh(ctx context.Context, accountID string, items []domain.InventoryItem) domain.InventoryAlertReport {
	now := a.now().UTC()
	report := domain.InventoryAlertReport{
		GeneratedAt: now,
		Alerts:      a.Evaluate(items, domain.NewDate(now)),
	}
	_ = a.cache.Set(ctx, CacheKey(accountID), report, a.cacheTTL)
	return report
}

func (a *Advisor) Invalidate(ctx context.Context, accountID string) error {
	return a.cache.Delete(ctx, CacheKey(accountID))
}

// Evaluate returns one alert per (item, condition), most urgent first. An item
// can be both low on stock and close to expiry.
func (a *Advisor) Evaluate(items []domain.InventoryItem, today domain.Date) []domain.InventoryAlert {
	alerts := make([]domain.InventoryAlert, 0, len(items))
	threshold := float64(a.lowStockThreshold)
	window := float64(a.expiryWarningDays)

	for _, item := range items {
		if item.Stock < a.lowStockThreshold {
			stockScore := clamp(1-float64(item.Stock)/threshold, 0, 1)
			if item.Stock == 0 {
				stockScore = 1
			}
			alerts = append(alerts, domain.InventoryAlert{
				ItemID:    item.ID,
				Name:      item.Name,
				Kind:      domain.AlertLowStock,
				Stock:     item.Stock,
				Expiry:    item.Expiry,
				DaysLeft:  daysUntil(today, item.Expiry),
				Severity:  severityOf(stockScore),
				Urgency:   round2(stockScore),
				ReasonMsg: fmt.Sprintf("%d in stock, below threshold %d", item.Stock, a.lowStockThreshold),
			})
		}

		if item.Expiry.IsZero() {
			continue
		}
		daysLeft := daysUntil(today, item.Expiry)
		if daysLeft < 0 {
			alerts = append(alerts, domain.InventoryAlert{
				ItemID:    item.ID,
				Name:      item.Name,
				Kind:      domain.AlertExpired,
				Stock:     item.Stock,
				Expiry:    item.Expiry,
				DaysLeft:  daysLeft,
				Severity:  SeverityCritical,
				Urgency:   1,
				ReasonMsg: fmt.Sprintf("expired %d days ago", -daysLeft),
			})
			continue
		}
		if daysLeft > a.expiryWarningDays {
			continue
		}

		expiryScore := clamp(1-float64(daysLeft)/window, 0, 1)
		valueScore := clamp(stockValue(item)/1000.0, 0, 1)
		urgency := 0.70*expiryScore + 0.30*valueScore
		alerts = append(alerts, domain.InventoryAlert{
			ItemID:    item.ID,
			Name:      item.Name,
			Kind:      domain.AlertExpiring,
			Stock:     item.Stock,
			Expiry:    item.Expiry,
			DaysLeft:  daysLeft,
			Severity:  severityOf(urgency),
			Urgency:   round2(urgency),
			ReasonMsg: fmt.Sprintf("expires in %d days with %d units on hand", daysLeft, item.Stock),
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Urgency != alerts[j].Urgency {
			return alerts[i].Urgency > alerts[j].Urgency
		}
		return alerts[i].Name < alerts[j].Name
	})
	return alerts
}

func severityOf(urgency float64) string {
	switch {
	case urgency >= 0.75:
		return SeverityCritical
	case urgency >= 0.40:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func daysUntil(today domain.Date, expiry domain.Date) int {
	if expiry.IsZero() {
		return 0
	}
	return int(math.Round(expiry.Sub(today.Time).Hours() / 24))
}

func stockValue(item domain.InventoryItem) float64 {
	value, _ := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Stock))).Float64()
	return value
}

func clamp(val float64, minVal float64, maxVal float64) float64 {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}
