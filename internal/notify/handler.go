package notify

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Rafiafrzl/SiPinjam-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/notifications", h.ListMine)
	r.PUT("/notifications/:notification_id/read", h.MarkRead)
}

func (h *Handler) ListMine(c *gin.Context) {
	recipient := c.GetString(auth.CtxUserIDKey)
	unreadOnly := c.Query("unread") == "true" || c.Query("unread") == "1"
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	res, err := h.svc.ListMine(c.Request.Context(), recipient, unreadOnly, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": res})
}

func (h *Handler) MarkRead(c *gin.Context) {
	recipient := c.GetString(auth.CtxUserIDKey)
	id, err := strconv.ParseInt(c.Param("notification_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification_id"})
		return
	}
	ok, err := h.svc.MarkRead(c.Request.Context(), id, recipient)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found or already read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "marked read"})
}
