package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProductImage struct {
	URL       string `bson:"url" json:"url"`
	IsPrimary bool   `bson:"isPrimary" json:"isPrimary"`
	Alt       string `bson:"alt,omitempty" json:"alt,omitempty"`
}

// Variant is a sellable color/size combination with its own stock and SKU.
type Variant struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	Color     string             `bson:"color" json:"color"`
	ColorCode string             `bson:"colorCode,omitempty" json:"colorCode,omitempty"`
	Size      float64            `bson:"size" json:"size"`
	Stock     int                `bson:"stock" json:"stock"`
	SKU       string             `bson:"sku" json:"sku"`
}

type Product struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name             string             `bson:"name" json:"name"`
	Slug             string             `bson:"slug" json:"slug"`
	SKU              string             `bson:"sku" json:"sku"`
	Description      string             `bson:"description,omitempty" json:"description,omitempty"`
	ShortDescription string             `bson:"shortDescription,omitempty" json:"shortDescription,omitempty"`
	CategoryID       primitive.ObjectID `bson:"categoryId,omitempty" json:"categoryId,omitempty"`
	BrandID          primitive.ObjectID `bson:"brandId,omitempty" json:"brandId,omitempty"`
	Price            float64            `bson:"price" json:"price"`
	SalePrice        *float64           `bson:"salePrice" json:"salePrice"`
	Images           []ProductImage     `bson:"images" json:"images"`
	Variants         []Variant          `bson:"variants" json:"variants"`
	TotalSold        int                `bson:"totalSold" json:"totalSold"`
	IsActive         bool               `bson:"isActive" json:"isActive"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// TotalStock sums stock across all variants.
func (p Product) TotalStock() int {
	total := 0
	for _, v := range p.Variants {
		total += v.Stock
	}
	return total
}

// Variant looks up a variant by id.
func (p Product) Variant(id primitive.ObjectID) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}
