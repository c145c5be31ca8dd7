package service

import (
	"context"
	"testing"

	"shop-service/internal/models"
	"shop-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalogStore struct {
	products   map[int64]*models.Product
	categories map[int64]*models.Category
	nextID     int64
	reads      int
}

func newFakeCatalogStore() *fakeCatalogStore {
	return &fakeCatalogStore{
		products:   make(map[int64]*models.Product),
		categories: make(map[int64]*models.Category),
		nextID:     1,
	}
}

func (f *fakeCatalogStore) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	f.reads++
	p, ok := f.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeCatalogStore) ListProducts(_ context.Context, _ store.ProductFilter) ([]models.Product, error) {
	var out []models.Product
	for _, p := range f.products {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeCatalogStore) CreateProduct(_ context.Context, p *models.Product) error {
	p.ID = f.nextID
	f.nextID++
	f.products[p.ID] = p
	return nil
}

func (f *fakeCatalogStore) UpdateProduct(_ context.Context, p *models.Product, updatePrice, updateStock bool) (*models.Product, error) {
	existing, ok := f.products[p.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if p.Name != "" {
		existing.Name = p.Name
	}
	if updatePrice {
		existing.Price = p.Price
	}
	if updateStock {
		existing.Stock = p.Stock
	}
	return existing, nil
}

func (f *fakeCatalogStore) DeleteProduct(_ context.Context, id int64) error {
	if _, ok := f.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.products, id)
	return nil
}

func (f *fakeCatalogStore) ListCategories(_ context.Context) ([]models.Category, error) {
	var out []models.Category
	for _, c := range f.categories {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeCatalogStore) GetCategoryByID(_ context.Context, id int64) (*models.Category, error) {
	c, ok := f.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeCatalogStore) CreateCategory(_ context.Context, c *models.Category) error {
	c.ID = f.nextID
	f.nextID++
	f.categories[c.ID] = c
	return nil
}

func (f *fakeCatalogStore) UpdateCategory(_ context.Context, c *models.Category) (*models.Category, error) {
	existing, ok := f.categories[c.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if c.Name != "" {
		existing.Name = c.Name
	}
	if c.Description != "" {
		existing.Description = c.Description
	}
	return existing, nil
}

func (f *fakeCatalogStore) DeleteCategory(_ context.Context, id int64) error {
	if _, ok := f.categories[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.categories, id)
	return nil
}

type fakeProductCache struct {
	entries map[int64]*models.Product
}

func newFakeProductCache() *fakeProductCache {
	return &fakeProductCache{entries: make(map[int64]*models.Product)}
}

func (f *fakeProductCache) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	return f.entries[id], nil
}

func (f *fakeProductCache) SetProduct(_ context.Context, p *models.Product) error {
	f.entries[p.ID] = p
	return nil
}

func (f *fakeProductCache) InvalidateProduct(_ context.Context, id int64) error {
	delete(f.entries, id)
	return nil
}

func intPtr(v int) *int { return &v }

func newTestCatalogService() (*CatalogService, *fakeCatalogStore, *fakeProductCache) {
	st := newFakeCatalogStore()
	cache := newFakeProductCache()
	return NewCatalogService(st, cache), st, cache
}

func TestCreateProduct(t *testing.T) {
	svc, _, _ := newTestCatalogService()

	product, err := svc.CreateProduct(context.Background(), &ProductInput{
		Name:  "Mechanical Keyboard",
		Price: "199.90",
		Stock: intPtr(10),
	})
	require.NoError(t, err)
	assert.NotZero(t, product.ID)
	assert.True(t, product.Price.Equal(decimal.RequireFromString("199.90")))
}

func TestCreateProductInvalidPrice(t *testing.T) {
	svc, _, _ := newTestCatalogService()

	_, err := svc.CreateProduct(context.Background(), &ProductInput{Name: "X", Price: "not-a-number"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateProduct(context.Background(), &ProductInput{Name: "X", Price: "-1.00"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetProductCaching(t *testing.T) {
	svc, st, cache := newTestCatalogService()

	created, err := svc.CreateProduct(context.Background(), &ProductInput{
		Name: "Widget", Price: "5.00", Stock: intPtr(3),
	})
	require.NoError(t, err)

	// first read misses the cache and hits the store
	_, err = svc.GetProduct(context.Background(), created.ID)
	require.NoError(t, err)
	storeReads := st.reads

	// second read is served from cache
	_, err = svc.GetProduct(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, storeReads, st.reads)

	// an update invalidates the cached entry
	_, err = svc.UpdateProduct(context.Background(), created.ID, &ProductInput{Price: "6.00"})
	require.NoError(t, err)
	assert.Nil(t, cache.entries[created.ID])

	got, err := svc.GetProduct(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("6.00")))
}

func TestDeleteProductMissing(t *testing.T) {
	svc, _, _ := newTestCatalogService()

	err := svc.DeleteProduct(context.Background(), 99)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCategoryLifecycle(t *testing.T) {
	svc, _, _ := newTestCatalogService()

	category, err := svc.CreateCategory(context.Background(), "Electronics", "Gadgets and devices")
	require.NoError(t, err)
	require.NotZero(t, category.ID)

	updated, err := svc.UpdateCategory(context.Background(), category.ID, "Electronics & More", "")
	require.NoError(t, err)
	assert.Equal(t, "Electronics & More", updated.Name)
	assert.Equal(t, "Gadgets and devices", updated.Description)

	require.NoError(t, svc.DeleteCategory(context.Background(), category.ID))

	_, err = svc.GetCategory(context.Background(), category.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateCategoryRequiresName(t *testing.T) {
	svc, _, _ := newTestCatalogService()

	_, err := svc.CreateCategory(context.Background(), "", "desc")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
