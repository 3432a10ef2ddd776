package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"shoestore/internal/models"
)

type productResponse struct {
	models.Product
	EffectivePrice float64 `json:"effectivePrice"`
	IsOnSale       bool    `json:"isOnSale"`
	TotalStock     int     `json:"totalStock"`
	InStock        bool    `json:"inStock"`
}

func newProductResponse(p models.Product) productResponse {
	stock := p.TotalStock()
	return productResponse{
		Product:        p,
		EffectivePrice: effectiveProductPrice(p.Price, p.SalePrice),
		IsOnSale:       isProductOnSale(p.Price, p.SalePrice),
		TotalStock:     stock,
		InStock:        stock > 0,
	}
}

func GetProduct(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /products/:id"
		logger := env.log()
		defer handlePanic(c, logger, route)

		id, ok := parseObjectID(c, logger, route, "id")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), env.timeout())
		defer cancel()

		product, err := env.Products.FindProductByID(ctx, id)
		if err != nil {
			respondServiceError(c, logger, route, err)
			return
		}
		if !product.IsActive {
			respondWithError(c, logger, http.StatusNotFound, route, "NOT_FOUND", "product not found")
			return
		}
		respond(c, http.StatusOK, gin.H{"product": newProductResponse(product)})
	}
}
