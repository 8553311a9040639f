package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mypharma/backend/internal/domain"
	"mypharma/backend/internal/report"
	"mypharma/backend/internal/store"
)

func statsCacheKey(accountID string) string {
	return "pharmacy:stats:" + accountID
}

// DashboardStats serves the per-account aggregate from cache when it can.
func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	var cached domain.DashboardStats
	if hit, err := s.cache.Get(ctx, statsCacheKey(accountID), &cached); err != nil {
		zap.S().Warnw("stats cache read failed", "error", err)
	} else if hit {
		return cached, nil
	}

	stats, err := s.repo.GetDashboardStats(ctx, accountID)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	if err := s.cache.Set(ctx, statsCacheKey(accountID), stats, s.opts.StatsCacheTTL); err != nil {
		zap.S().Warnw("stats cache write failed", "error", err)
	}
	return stats, nil
}

func (s *Service) TopMedicines(ctx context.Context) ([]domain.TopMedicine, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.TopMedicines(ctx, accountID, 10)
}

func (s *Service) SalesByCategory(ctx context.Context) ([]domain.CategorySales, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.SalesByCategory(ctx, accountID)
}

func (s *Service) RecentSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 10
	}
	return s.repo.ListSales(ctx, accountID, domain.SaleFilter{Limit: limit})
}

// MonthlySales covers the current month and the five before it.
func (s *Service) MonthlySales(ctx context.Context) ([]domain.MonthlySales, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -5, 0)
	return s.repo.MonthlySales(ctx, accountID, since)
}

func (s *Service) Export(ctx context.Context, kind report.Kind, format report.Format) (report.File, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return report.File{}, err
	}

	pharmacy := ""
	if account, err := s.repo.GetAccountByID(ctx, accountID); err == nil {
		pharmacy = account.PharmacyName
	}
	at := s.now().UTC()

	var doc report.Document
	switch kind {
	case report.KindSales:
		sales, err := s.repo.ListSales(ctx, accountID, domain.SaleFilter{})
		if err != nil {
			return report.File{}, err
		}
		doc = report.SalesDocument(pharmacy, sales, at)
	case report.KindInventory:
		items, err := s.repo.ListInventory(ctx, accountID)
		if err != nil {
			return report.File{}, err
		}
		doc = report.InventoryDocument(pharmacy, items, at)
	case report.KindCustomers:
		customers, err := s.repo.ListCustomers(ctx, accountID)
		if err != nil {
			return report.File{}, err
		}
		doc = report.CustomersDocument(pharmacy, customers, at)
	default:
		return report.File{}, store.Invalid("type", "must be one of sales, inventory, customers")
	}

	file, err := report.Render(doc, format)
	if err != nil {
		return report.File{}, err
	}
	s.logAudit(ctx, "report_export", "report", string(kind), "format="+string(format))
	return file, nil
}
