package models

import (
	"strings"
	"time"
)

// Product is a catalog entry keyed by its GTIN.
type Product struct {
	GTIN             string     `gorm:"type:varchar(14);primaryKey" json:"gtin"`
	GTINType         string     `gorm:"type:varchar(10)" json:"gtin_type"`
	Brand            string     `gorm:"type:varchar(255);index" json:"brand"`
	ProductName      string     `gorm:"type:varchar(500);index" json:"product_name"`
	OwnerTaxID       string     `gorm:"type:varchar(20)" json:"owner_tax_id,omitempty"`
	OriginCountry    string     `gorm:"type:varchar(100)" json:"origin_country"`
	NCM              string     `gorm:"type:varchar(10)" json:"ncm"`
	CEST             string     `gorm:"type:varchar(10)" json:"cest"`
	GrossWeightValue *float64   `gorm:"type:decimal(12,4)" json:"gross_weight_value"`
	GrossWeightUnit  string     `gorm:"type:varchar(10)" json:"gross_weight_unit"`
	DSITDate         *time.Time `json:"dsit_date"`
	ImageURL         string     `gorm:"type:text" json:"image_url"`
	UpdatedAt        time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

// NormalizeGTIN keeps only the digits of a GTIN as typed by a caller.
func NormalizeGTIN(gtin string) string {
	var b strings.Builder
	for _, r := range gtin {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BatchItem is one entry of a batch lookup, in request order.
type BatchItem struct {
	GTIN    string   `json:"gtin"`
	Found   bool     `json:"found"`
	Product *Product `json:"product"`
}

type BatchResult struct {
	TotalRequested int         `json:"total_requested"`
	TotalFound     int         `json:"total_found"`
	Results        []BatchItem `json:"results"`
}
