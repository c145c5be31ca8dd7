package service

import (
	"context"
	"fmt"

	"shop-service/internal/models"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogStore is the persistence surface for products and categories.
type CatalogStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, f store.ProductFilter) ([]models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product, updatePrice, updateStock bool) (*models.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategoryByID(ctx context.Context, id int64) (*models.Category, error)
	CreateCategory(ctx context.Context, c *models.Category) error
	UpdateCategory(ctx context.Context, c *models.Category) (*models.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
}

// ProductCache caches product reads.
type ProductCache interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	SetProduct(ctx context.Context, p *models.Product) error
	InvalidateProduct(ctx context.Context, id int64) error
}

// CatalogService handles product and category operations
type CatalogService struct {
	store  CatalogStore
	cache  ProductCache
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store CatalogStore, cache ProductCache) *CatalogService {
	return &CatalogService{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// ProductInput carries create/update fields for a product. Price is a
// decimal string; nil Stock, CategoryID, or Image leave the column alone
// on updates.
type ProductInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       string  `json:"price"`
	Stock       *int    `json:"stock"`
	CategoryID  *int64  `json:"category_id"`
	Image       *string `json:"image"`
}

// GetProduct returns a product, serving from cache when possible
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	cached, err := s.cache.GetProduct(ctx, id)
	if err != nil {
		s.logger.Warn("Product cache read failed", zap.Int64("product_id", id), zap.Error(err))
	}
	if cached != nil {
		util.CacheRequestsTotal.WithLabelValues("product", "hit").Inc()
		return cached, nil
	}
	util.CacheRequestsTotal.WithLabelValues("product", "miss").Inc()

	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetProduct(ctx, product); err != nil {
		s.logger.Warn("Product cache write failed", zap.Int64("product_id", id), zap.Error(err))
	}
	return product, nil
}

// ListProducts returns products matching the filter
func (s *CatalogService) ListProducts(ctx context.Context, f store.ProductFilter) ([]models.Product, error) {
	return s.store.ListProducts(ctx, f)
}

// CreateProduct validates the input and inserts a product
func (s *CatalogService) CreateProduct(ctx context.Context, in *ProductInput) (*models.Product, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	price, err := decimal.NewFromString(in.Price)
	if err != nil || price.IsNegative() {
		return nil, fmt.Errorf("%w: invalid price %q", ErrInvalidInput, in.Price)
	}
	stock := 0
	if in.Stock != nil {
		stock = *in.Stock
	}
	if stock < 0 {
		return nil, fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}

	product := &models.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       price,
		Stock:       stock,
		CategoryID:  in.CategoryID,
		Image:       in.Image,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return product, nil
}

// UpdateProduct applies a partial update and invalidates the cache
func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, in *ProductInput) (*models.Product, error) {
	updatePrice := false
	price := decimal.Zero
	if in.Price != "" {
		var err error
		price, err = decimal.NewFromString(in.Price)
		if err != nil || price.IsNegative() {
			return nil, fmt.Errorf("%w: invalid price %q", ErrInvalidInput, in.Price)
		}
		updatePrice = true
	}
	updateStock := in.Stock != nil
	if updateStock && *in.Stock < 0 {
		return nil, fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}

	product := &models.Product{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Price:       price,
		CategoryID:  in.CategoryID,
		Image:       in.Image,
	}
	if updateStock {
		product.Stock = *in.Stock
	}

	updated, err := s.store.UpdateProduct(ctx, product, updatePrice, updateStock)
	if err != nil {
		return nil, err
	}

	if err := s.cache.InvalidateProduct(ctx, id); err != nil {
		s.logger.Warn("Product cache invalidation failed", zap.Int64("product_id", id), zap.Error(err))
	}
	return updated, nil
}

// DeleteProduct removes a product and drops it from the cache
func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	if err := s.cache.InvalidateProduct(ctx, id); err != nil {
		s.logger.Warn("Product cache invalidation failed", zap.Int64("product_id", id), zap.Error(err))
	}
	return nil
}

// ListCategories returns all categories
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.store.ListCategories(ctx)
}

// GetCategory returns a category by id
func (s *CatalogService) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	return s.store.GetCategoryByID(ctx, id)
}

// CreateCategory inserts a category
func (s *CatalogService) CreateCategory(ctx context.Context, name, description string) (*models.Category, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	category := &models.Category{Name: name, Description: description}
	if err := s.store.CreateCategory(ctx, category); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return category, nil
}

// UpdateCategory applies a partial update
func (s *CatalogService) UpdateCategory(ctx context.Context, id int64, name, description string) (*models.Category, error) {
	return s.store.UpdateCategory(ctx, &models.Category{ID: id, Name: name, Description: description})
}

// DeleteCategory removes a category
func (s *CatalogService) DeleteCategory(ctx context.Context, id int64) error {
	return s.store.DeleteCategory(ctx, id)
}
