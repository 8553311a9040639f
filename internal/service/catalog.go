package service

import (
	"context"
	"strings"

	"mypharma/backend/internal/domain"
	"mypharma/backend/internal/store"
)

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCategories(ctx, accountID)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryRequest) (domain.Category, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.Category{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, store.Invalid("name", "is required")
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{AccountID: accountID, Name: name})
	if err != nil {
		return domain.Category{}, err
	}
	s.logAudit(ctx, "category_create", "category", created.ID, "name="+name)
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, categoryID string, req domain.CategoryRequest) (domain.Category, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.Category{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, store.Invalid("name", "is required")
	}

	updated, err := s.repo.UpdateCategory(ctx, domain.Category{ID: categoryID, AccountID: accountID, Name: name})
	if err != nil {
		return domain.Category{}, err
	}
	s.logAudit(ctx, "category_update", "category", categoryID, "name="+name)
	return *updated, nil
}

func (s *Service) DeleteCategory(ctx context.Context, categoryID string) error {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, accountID, categoryID); err != nil {
		return err
	}
	s.logAudit(ctx, "category_delete", "category", categoryID, "")
	return nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSuppliers(ctx, accountID)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierRequest) (domain.Supplier, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.Supplier{}, err
	}
	supplier, err := supplierFromRequest(req)
	if err != nil {
		return domain.Supplier{}, err
	}
	supplier.AccountID = accountID

	created, err := s.repo.CreateSupplier(ctx, supplier)
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_create", "supplier", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, supplierID string, req domain.SupplierRequest) (domain.Supplier, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.Supplier{}, err
	}
	supplier, err := supplierFromRequest(req)
	if err != nil {
		return domain.Supplier{}, err
	}
	supplier.ID = supplierID
	supplier.AccountID = accountID

	updated, err := s.repo.UpdateSupplier(ctx, supplier)
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_update", "supplier", supplierID, "name="+updated.Name)
	return *updated, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, supplierID string) error {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteSupplier(ctx, accountID, supplierID); err != nil {
		return err
	}
	s.logAudit(ctx, "supplier_delete", "supplier", supplierID, "")
	return nil
}

func supplierFromRequest(req domain.SupplierRequest) (domain.Supplier, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Supplier{}, store.Invalid("name", "is required")
	}
	return domain.Supplier{
		Name:    name,
		Contact: strings.TrimSpace(req.Contact),
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.TrimSpace(req.Email),
	}, nil
}
