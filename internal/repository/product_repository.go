package repository

import (
	"context"
	stderrors "errors"
	"strings"

	"gtin-api/internal/models"
	"gtin-api/internal/pkg/errors"

	"gorm.io/gorm"
)

type ProductRepository interface {
	GetByGTIN(ctx context.Context, gtin string) (*models.Product, error)
	GetByGTINs(ctx context.Context, gtins []string) ([]models.Product, error)
	Search(ctx context.Context, term string, limit int) ([]models.Product, error)
	Create(ctx context.Context, product *models.Product) error
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) GetByGTIN(ctx context.Context, gtin string) (*models.Product, error) {
	var product models.Product

	err := r.db.WithContext(ctx).First(&product, "gtin = ?", gtin).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Database(err, "failed to get product")
	}
	return &product, nil
}

func (r *productRepository) GetByGTINs(ctx context.Context, gtins []string) ([]models.Product, error) {
	if len(gtins) == 0 {
		return nil, nil
	}

	var products []models.Product
	err := r.db.WithContext(ctx).Where("gtin IN ?", gtins).Find(&products).Error
	if err != nil {
		return nil, errors.Database(err, "failed to get products")
	}
	return products, nil
}

// Search matches the term against product name and brand, case-insensitively.
func (r *productRepository) Search(ctx context.Context, term string, limit int) ([]models.Product, error) {
	var products []models.Product
	pattern := "%" + strings.ToLower(term) + "%"

	err := r.db.WithContext(ctx).
		Where("LOWER(product_name) LIKE ? OR LOWER(brand) LIKE ?", pattern, pattern).
		Order("product_name").
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return nil, errors.Database(err, "failed to search products")
	}
	return products, nil
}

func (r *productRepository) Create(ctx context.Context, product *models.Product) error {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return errors.Database(err, "failed to create product")
	}
	return nil
}
