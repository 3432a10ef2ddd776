package handlers

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"shoestore/internal/models"
)

type variantRequest struct {
	Color     string  `json:"color" binding:"required"`
	ColorCode string  `json:"colorCode"`
	Size      float64 `json:"size" binding:"required,gt=0"`
	Stock     int     `json:"stock" binding:"gte=0"`
	SKU       string  `json:"sku" binding:"required"`
}

type imageRequest struct {
	URL       string `json:"url" binding:"required,url"`
	IsPrimary bool   `json:"isPrimary"`
	Alt       string `json:"alt"`
}

type createProductRequest struct {
	Name             string           `json:"name" binding:"required"`
	Slug             string           `json:"slug"`
	SKU              string           `json:"sku" binding:"required"`
	Description      string           `json:"description"`
	ShortDescription string           `json:"shortDescription"`
	Price            *float64         `json:"price" binding:"required,gte=0"`
	SalePrice        *float64         `json:"salePrice"`
	Images           []imageRequest   `json:"images" binding:"dive"`
	Variants         []variantRequest `json:"variants" binding:"required,min=1,dive"`
	IsActive         *bool            `json:"isActive"`
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	return strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// CreateProduct adds a product with its sellable variants.
func CreateProduct(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/products"
		logger := env.log()
		defer handlePanic(c, logger, route)

		var req createProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, logger, route, err)
			return
		}
		if err := validateSalePrice(*req.Price, req.SalePrice); err != nil {
			respondWithError(c, logger, http.StatusBadRequest, route, "VALIDATION_ERROR", err.Error())
			return
		}

		seen := make(map[string]bool, len(req.Variants))
		variants := make([]models.Variant, 0, len(req.Variants))
		for _, v := range req.Variants {
			sku := strings.TrimSpace(v.SKU)
			if seen[sku] {
				respondWithError(c, logger, http.StatusBadRequest, route, "VALIDATION_ERROR", "duplicate variant sku "+sku)
				return
			}
			seen[sku] = true
			variants = append(variants, models.Variant{
				ID:        primitive.NewObjectID(),
				Color:     strings.TrimSpace(v.Color),
				ColorCode: strings.TrimSpace(v.ColorCode),
				Size:      v.Size,
				Stock:     v.Stock,
				SKU:       sku,
			})
		}

		images := make([]models.ProductImage, 0, len(req.Images))
		for _, img := range req.Images {
			images = append(images, models.ProductImage(img))
		}

		slug := slugify(req.Slug)
		if slug == "" {
			slug = slugify(req.Name)
		}
		isActive := true
		if req.IsActive != nil {
			isActive = *req.IsActive
		}

		now := env.now()
		product := models.Product{
			Name:             strings.TrimSpace(req.Name),
			Slug:             slug,
			SKU:              strings.TrimSpace(req.SKU),
			Description:      req.Description,
			ShortDescription: req.ShortDescription,
			Price:            *req.Price,
			SalePrice:        req.SalePrice,
			Images:           images,
			Variants:         variants,
			IsActive:         isActive,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), env.timeout())
		defer cancel()

		if err := env.Products.CreateProduct(ctx, &product); err != nil {
			respondServiceError(c, logger, route, err)
			return
		}

		logger.Info("[PRODUCT] [INFO] product created", zap.String("productId", product.ID.Hex()), zap.Int("variants", len(variants)))
		respond(c, http.StatusCreated, gin.H{
			"message": "Product created successfully",
			"product": newProductResponse(product),
		})
	}
}
