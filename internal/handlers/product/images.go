package product

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"subscription_live/internal/handlers"
	"subscription_live/internal/storage"
)

// UploadProductImage stores the multipart "file" and appends its URL to the product.
func (h *Handler) UploadProductImage(c *gin.Context) {
	id, ok := handlers.ParamUUID(c, "id")
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxImageSize+1<<20)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		handlers.BadRequest(c, "Missing file")
		return
	}
	defer file.Close()

	if header.Size > storage.MaxImageSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image must be at most 5 MB"})
		return
	}

	p, err := h.catalog.UploadImage(c.Request.Context(), id, header.Filename, file, header.Size)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Image uploaded", "product": p})
}
