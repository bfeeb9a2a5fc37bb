package services

import (
	"context"
	"fmt"
	"strings"

	"gtin-api/internal/models"
	apperrors "gtin-api/internal/pkg/errors"
	"gtin-api/internal/repository"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 50
)

type ProductService interface {
	GetProduct(ctx context.Context, gtin string) (*models.Product, error)
	SearchProducts(ctx context.Context, term string, limit int) ([]models.Product, error)
	BatchLookup(ctx context.Context, gtins []string) (*models.BatchResult, error)
}

type productService struct {
	productRepo repository.ProductRepository
}

func NewProductService(productRepo repository.ProductRepository) ProductService {
	return &productService{productRepo: productRepo}
}

func (s *productService) GetProduct(ctx context.Context, gtin string) (*models.Product, error) {
	normalized := models.NormalizeGTIN(gtin)
	if normalized == "" {
		return nil, fmt.Errorf("%w: GTIN must contain digits", apperrors.ErrInvalidInput)
	}
	return s.productRepo.GetByGTIN(ctx, normalized)
}

func (s *productService) SearchProducts(ctx context.Context, term string, limit int) ([]models.Product, error) {
	term = strings.TrimSpace(term)
	if len(term) < 2 {
		return nil, fmt.Errorf("%w: search term must have at least 2 characters", apperrors.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	return s.productRepo.Search(ctx, term, limit)
}

// BatchLookup resolves every requested GTIN in one query and answers in
// request order. GTINs with no digits are reported as not found.
func (s *productService) BatchLookup(ctx context.Context, gtins []string) (*models.BatchResult, error) {
	normalized := make([]string, len(gtins))
	var query []string
	for i, gtin := range gtins {
		normalized[i] = models.NormalizeGTIN(gtin)
		if normalized[i] != "" {
			query = append(query, normalized[i])
		}
	}

	products, err := s.productRepo.GetByGTINs(ctx, query)
	if err != nil {
		return nil, err
	}
	byGTIN := make(map[string]*models.Product, len(products))
	for i := range products {
		byGTIN[products[i].GTIN] = &products[i]
	}

	result := &models.BatchResult{
		TotalRequested: len(gtins),
		Results:        make([]models.BatchItem, 0, len(gtins)),
	}
	for i, gtin := range gtins {
		product, found := byGTIN[normalized[i]]
		if found {
			result.TotalFound++
		}
		result.Results = append(result.Results, models.BatchItem{
			GTIN:    gtin,
			Found:   found,
			Product: product,
		})
	}
	return result, nil
}
