package product

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"

	"subscription_live/internal/audit"
	"subscription_live/internal/catalog"
	"subscription_live/internal/handlers"
	"subscription_live/internal/models"
)

// Catalog is the product service behind these handlers.
type Catalog interface {
	List(ctx context.Context, category string) ([]models.Product, error)
	Get(ctx context.Context, idOrSlug string) (*models.Product, error)
	Search(ctx context.Context, q string) ([]models.Product, error)
	Create(ctx context.Context, in catalog.ProductInput) (*models.Product, error)
	Update(ctx context.Context, id gocql.UUID, in catalog.ProductInput) (*models.Product, error)
	Delete(ctx context.Context, id gocql.UUID) error
	UploadImage(ctx context.Context, id gocql.UUID, filename string, r io.Reader, size int64) (*models.Product, error)
}

type Handler struct {
	catalog Catalog
}

func NewHandler(c Catalog) *Handler {
	return &Handler{catalog: c}
}

// GetProducts lists active products, optionally ?category=.
func (h *Handler) GetProducts(c *gin.Context) {
	products, err := h.catalog.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

func (h *Handler) SearchProducts(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		handlers.BadRequest(c, "Search query is required")
		return
	}
	products, err := h.catalog.Search(c.Request.Context(), q)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products), "query": q})
}

// GetProduct accepts either the product id or its slug.
func (h *Handler) GetProduct(c *gin.Context) {
	p, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var in catalog.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "Invalid product: "+err.Error())
		return
	}
	p, err := h.catalog.Create(c.Request.Context(), in)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.Set(audit.KeyResourceID, p.ID.String())
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdateProduct(c *gin.Context) {
	id, ok := handlers.ParamUUID(c, "id")
	if !ok {
		return
	}
	var in catalog.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "Invalid product: "+err.Error())
		return
	}
	p, err := h.catalog.Update(c.Request.Context(), id, in)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := handlers.ParamUUID(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.Delete(c.Request.Context(), id); err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}
