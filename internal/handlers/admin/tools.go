package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"subscription_live/internal/audit"
	"subscription_live/internal/handlers"
	"subscription_live/internal/models"
	"subscription_live/internal/toolgrant"
)

// CreateTool registers a shared account. The password is encrypted before it
// is stored and never returned.
func (h *Handler) CreateTool(c *gin.Context) {
	var in toolgrant.ToolInput
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "Invalid tool: "+err.Error())
		return
	}
	tool, err := h.Tools.Create(c.Request.Context(), in)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.Set(audit.KeyResourceID, tool.ID.String())
	c.JSON(http.StatusCreated, tool)
}

// ListTools lists tools with their seat usage, optionally ?category=.
func (h *Handler) ListTools(c *gin.Context) {
	tools, err := h.Tools.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	if tools == nil {
		tools = []models.Tool{}
	}
	c.JSON(http.StatusOK, gin.H{"tools": tools, "count": len(tools)})
}

func (h *Handler) UpdateTool(c *gin.Context) {
	id, ok := handlers.ParamUUID(c, "id")
	if !ok {
		return
	}
	var in toolgrant.ToolUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "Invalid tool update")
		return
	}
	tool, err := h.Tools.Update(c.Request.Context(), id, in)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tool)
}

func (h *Handler) DeleteTool(c *gin.Context) {
	id, ok := handlers.ParamUUID(c, "id")
	if !ok {
		return
	}
	if err := h.Tools.Delete(c.Request.Context(), id); err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Tool deleted"})
}
