package returns

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/apperr"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// RegisterRoutes mounts borrower routes on r and admin routes on admin.
func RegisterRoutes(r gin.IRoutes, admin gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/returns", h.SubmitReturn)
	r.GET("/returns/mine", h.ListMyReturns)
	r.GET("/returns/:return_key", h.GetReturn)

	admin.GET("/returns", h.ListReturns)
	admin.PUT("/returns/:return_key/verify", h.VerifyReturn)
}

func (h *Handler) SubmitReturn(c *gin.Context) {
	var req SubmitReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	borrower := c.GetString(auth.CtxUserIDKey)
	res, err := h.svc.SubmitReturn(c.Request.Context(), borrower, req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.Header("Location", "/returns/"+res.ReturnULID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) VerifyReturn(c *gin.Context) {
	var req VerifyReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "decision is required"))
		return
	}
	admin := c.GetString(auth.CtxUserIDKey)

	var (
		res ReturnResponse
		err error
	)
	switch strings.ToLower(req.Decision) {
	case "accept", "accepted":
		res, err = h.svc.AcceptReturn(c.Request.Context(), c.Param("return_key"), admin, req.Note)
	case "reject", "rejected":
		res, err = h.svc.RejectReturn(c.Request.Context(), c.Param("return_key"), admin, req.Note)
	default:
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "decision must be accept or reject"))
		return
	}
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetReturn(c *gin.Context) {
	actor := c.GetString(auth.CtxUserIDKey)
	isAdmin := c.GetString(auth.CtxRoleKey) == auth.RoleAdmin
	res, err := h.svc.GetReturn(c.Request.Context(), c.Param("return_key"), actor, isAdmin)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListMyReturns(c *gin.Context) {
	borrower := c.GetString(auth.CtxUserIDKey)
	f, p := parseListQuery(c)
	res, err := h.svc.ListMyReturns(c.Request.Context(), borrower, f, p)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListReturns(c *gin.Context) {
	f, p := parseListQuery(c)
	if v := c.Query("submitted_by"); v != "" {
		f.SubmittedBy = &v
	}
	if v := c.Query("loan_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			f.LoanID = &id
		}
	}
	res, err := h.svc.ListReturns(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---- helpers ----

func parseListQuery(c *gin.Context) (ReturnFilter, Page) {
	f := ReturnFilter{}
	if v := c.Query("status"); v != "" {
		st := VerifyStatus(v)
		f.Status = &st
	}
	p := Page{
		Limit:  atoiDef(c.Query("limit"), 50),
		Offset: atoiDef(c.Query("offset"), 0),
		Order:  strings.ToLower(c.DefaultQuery("order", "desc")),
	}
	return f, p
}

func atoiDef(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
