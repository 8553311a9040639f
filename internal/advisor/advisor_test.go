package advisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mypharma/backend/internal/cache"
	"mypharma/backend/internal/domain"
)

func mustDate(t *testing.T, raw string) domain.Date {
	t.Helper()
	d, err := domain.ParseDate(raw)
	require.NoError(t, err)
	return d
}

func TestEvaluateFlagsLowStockExpiringAndExpired(t *testing.T) {
	a := New(nil, 0, 150, 60)
	today := mustDate(t, "2025-11-10")

	alerts := a.Evaluate([]domain.InventoryItem{
		{ID: "MED001", Name: "Paracetamol 500mg", Stock: 450, UnitPrice: decimal.RequireFromString("2.50"), Expiry: mustDate(t, "2026-06-15")},
		{ID: "MED002", Name: "Amoxicillin 250mg", Stock: 230, UnitPrice: decimal.RequireFromString("5.75"), Expiry: mustDate(t, "2025-12-20")},
		{ID: "MED005", Name: "Cetirizine 10mg", Stock: 95, UnitPrice: decimal.RequireFromString("3.50"), Expiry: mustDate(t, "2026-01-30")},
		{ID: "MED009", Name: "Old Syrup", Stock: 12, UnitPrice: decimal.RequireFromString("1.00"), Expiry: mustDate(t, "2025-11-01")},
	}, today)

	kinds := map[string][]string{}
	for _, alert := range alerts {
		kinds[alert.ItemID] = append(kinds[alert.ItemID], alert.Kind)
	}
	assert.NotContains(t, kinds, "MED001")
	assert.Equal(t, []string{domain.AlertExpiring}, kinds["MED002"])
	assert.ElementsMatch(t, []string{domain.AlertLowStock}, kinds["MED005"])
	assert.ElementsMatch(t, []string{domain.AlertLowStock, domain.AlertExpired}, kinds["MED009"])

	require.NotEmpty(t, alerts)
	assert.Equal(t, domain.AlertExpired, alerts[0].Kind)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.Equal(t, -9, alerts[0].DaysLeft)

	for i := 1; i < len(alerts); i++ {
		assert.GreaterOrEqual(t, alerts[i-1].Urgency, alerts[i].Urgency)
	}
}

func TestEvaluateOutOfStockIsCritical(t *testing.T) {
	a := New(nil, 0, 150, 60)
	alerts := a.Evaluate([]domain.InventoryItem{{ID: "X", Name: "X", Stock: 0}}, mustDate(t, "2025-11-10"))
	require.Len(t, alerts, 1)
	assert.Equal(t, 1.0, alerts[0].Urgency)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
}

func TestAlertsServesFromCacheUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	a := New(cache.NewMemory(), time.Minute, 150, 60)
	a.now = func() time.Time { return time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC) }

	calls := 0
	load := func(context.Context) ([]domain.InventoryItem, error) {
		calls++
		return []domain.InventoryItem{{ID: "MED005", Name: "Cetirizine 10mg", Stock: 95}}, nil
	}

	first, err := a.Alerts(ctx, "ACC-1", load)
	require.NoError(t, err)
	require.Len(t, first.Alerts, 1)

	_, err = a.Alerts(ctx, "ACC-1", load)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	require.NoError(t, a.Invalidate(ctx, "ACC-1"))
	_, err = a.Alerts(ctx, "ACC-1", load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestAlertsPropagatesLoadError(t *testing.T) {
	boom := errors.New("store down")
	_, err := New(nil, 0, 0, 0).Alerts(context.Background(), "ACC-1", func(context.Context) ([]domain.InventoryItem, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}
