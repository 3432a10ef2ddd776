package memstore

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"shoestore/internal/models"
	"shoestore/internal/orders"
)

type Catalog struct {
	mu       sync.Mutex
	products map[primitive.ObjectID]models.Product
	slugs    map[string]primitive.ObjectID
	skus     map[string]primitive.ObjectID
}

func NewCatalog(products ...models.Product) *Catalog {
	c := &Catalog{
		products: make(map[primitive.ObjectID]models.Product),
		slugs:    make(map[string]primitive.ObjectID),
		skus:     make(map[string]primitive.ObjectID),
	}
	for _, p := range products {
		_ = c.CreateProduct(context.Background(), &p)
	}
	return c
}

func (c *Catalog) CreateProduct(_ context.Context, product *models.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if product.ID.IsZero() {
		product.ID = primitive.NewObjectID()
	}
	if product.Slug != "" {
		if _, ok := c.slugs[product.Slug]; ok {
			return fmt.Errorf("%w: slug %s already exists", orders.ErrConflict, product.Slug)
		}
	}
	for _, v := range product.Variants {
		if _, ok := c.skus[v.SKU]; ok && v.SKU != "" {
			return fmt.Errorf("%w: variant sku %s already exists", orders.ErrConflict, v.SKU)
		}
	}

	if product.Slug != "" {
		c.slugs[product.Slug] = product.ID
	}
	for _, v := range product.Variants {
		if v.SKU != "" {
			c.skus[v.SKU] = product.ID
		}
	}
	c.products[product.ID] = cloneProduct(*product)
	return nil
}

func (c *Catalog) FindProductByID(_ context.Context, id primitive.ObjectID) (models.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[id]
	if !ok {
		return models.Product{}, fmt.Errorf("%w: product %s", orders.ErrNotFound, id.Hex())
	}
	return cloneProduct(p), nil
}

// Stock returns the current stock of a variant, or -1 if it does not exist.
func (c *Catalog) Stock(productID, variantID primitive.ObjectID) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[productID]
	if !ok {
		return -1
	}
	v, ok := p.Variant(variantID)
	if !ok {
		return -1
	}
	return v.Stock
}

func (c *Catalog) ReserveStock(_ context.Context, productID, variantID primitive.ObjectID, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, idx, err := c.locate(productID, variantID)
	if err != nil {
		return err
	}
	if p.Variants[idx].Stock < quantity {
		return &orders.StockError{
			ProductID: productID,
			VariantID: variantID,
			Available: p.Variants[idx].Stock,
			Requested: quantity,
		}
	}
	p.Variants[idx].Stock -= quantity
	c.products[productID] = p
	return nil
}

func (c *Catalog) ReleaseStock(_ context.Context, productID, variantID primitive.ObjectID, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, idx, err := c.locate(productID, variantID)
	if err != nil {
		return err
	}
	p.Variants[idx].Stock += quantity
	c.products[productID] = p
	return nil
}

func (c *Catalog) locate(productID, variantID primitive.ObjectID) (models.Product, int, error) {
	p, ok := c.products[productID]
	if !ok {
		return models.Product{}, -1, fmt.Errorf("%w: product %s", orders.ErrNotFound, productID.Hex())
	}
	p = cloneProduct(p)
	for i, v := range p.Variants {
		if v.ID == variantID {
			return p, i, nil
		}
	}
	return models.Product{}, -1, fmt.Errorf("%w: variant %s", orders.ErrNotFound, variantID.Hex())
}

func cloneProduct(p models.Product) models.Product {
	p.Variants = append([]models.Variant(nil), p.Variants...)
	p.Images = append([]models.ProductImage(nil), p.Images...)
	return p
}
