package loans

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/apperr"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// RegisterRoutes mounts borrower routes on r and admin routes on admin.
func RegisterRoutes(r gin.IRoutes, admin gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/loans", h.RequestLoan)
	r.GET("/loans/mine", h.ListMyLoans)
	r.GET("/loans/:loan_key", h.GetLoan)
	r.POST("/loans/:loan_key/extension", h.RequestExtension)

	admin.GET("/loans", h.ListLoans)
	admin.PUT("/loans/:loan_key/approve", h.ApproveLoan)
	admin.PUT("/loans/:loan_key/reject", h.RejectLoan)
	admin.PUT("/loans/:loan_key/return", h.MarkReturned)
	admin.PUT("/loans/:loan_key/extension/approve", h.ApproveExtension)
	admin.PUT("/loans/:loan_key/extension/reject", h.RejectExtension)
	admin.DELETE("/loans", h.BulkDelete)
}

func (h *Handler) RequestLoan(c *gin.Context) {
	var req CreateLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	borrower := c.GetString(auth.CtxUserIDKey)
	res, err := h.svc.RequestLoan(c.Request.Context(), borrower, req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.Header("Location", "/loans/"+res.LoanULID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetLoan(c *gin.Context) {
	actor := c.GetString(auth.CtxUserIDKey)
	isAdmin := c.GetString(auth.CtxRoleKey) == auth.RoleAdmin
	res, err := h.svc.GetLoan(c.Request.Context(), c.Param("loan_key"), actor, isAdmin)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListMyLoans(c *gin.Context) {
	borrower := c.GetString(auth.CtxUserIDKey)
	f, p := parseListQuery(c)
	res, err := h.svc.ListMyLoans(c.Request.Context(), borrower, f, p)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListLoans(c *gin.Context) {
	f, p := parseListQuery(c)
	if v := c.Query("borrower_id"); v != "" {
		f.BorrowerID = &v
	}
	res, err := h.svc.ListLoans(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ApproveLoan(c *gin.Context) {
	var req ApproveLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid json"))
		return
	}
	admin := c.GetString(auth.CtxUserIDKey)
	res, err := h.svc.ApproveLoan(c.Request.Context(), c.Param("loan_key"), admin, req.Note)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) RejectLoan(c *gin.Context) {
	var req RejectLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "reason is required"))
		return
	}
	admin := c.GetString(auth.CtxUserIDKey)
	res, err := h.svc.RejectLoan(c.Request.Context(), c.Param("loan_key"), admin, req.Reason)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) MarkReturned(c *gin.Context) {
	admin := c.GetString(auth.CtxUserIDKey)
	res, err := h.svc.MarkReturned(c.Request.Context(), c.Param("loan_key"), admin)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) RequestExtension(c *gin.Context) {
	var req RequestExtensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	borrower := c.GetString(auth.CtxUserIDKey)
	res, err := h.svc.RequestExtension(c.Request.Context(), c.Param("loan_key"), borrower, req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ApproveExtension(c *gin.Context) {
	var req DecideExtensionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid json"))
		return
	}
	admin := c.GetString(auth.CtxUserIDKey)
	res, err := h.svc.ApproveExtension(c.Request.Context(), c.Param("loan_key"), admin, req.Note)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) RejectExtension(c *gin.Context) {
	var req DecideExtensionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid json"))
		return
	}
	admin := c.GetString(auth.CtxUserIDKey)
	res, err := h.svc.RejectExtension(c.Request.Context(), c.Param("loan_key"), admin, req.Note)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) BulkDelete(c *gin.Context) {
	var req BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "loan_ids is required"))
		return
	}
	res, err := h.svc.BulkDelete(c.Request.Context(), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---- helpers ----

func parseListQuery(c *gin.Context) (LoanFilter, Page) {
	f := LoanFilter{}
	if v := c.Query("status"); v != "" {
		st := LoanStatus(v)
		f.Status = &st
	}
	if v := c.Query("return_status"); v != "" {
		rs := ReturnStatus(v)
		f.ReturnStatus = &rs
	}
	if v := c.Query("only_outstanding"); v == "true" || v == "1" {
		f.OnlyOutstanding = true
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = &t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = &t
		}
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
