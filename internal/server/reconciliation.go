package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/commissary/internal/catalog/domain"
)

type reconcileRequest struct {
	Products []catalogdomain.Product `json:"products" binding:"required"`
}

// HandleCatalogReconciliation runs the reconciler over a remote catalog
// snapshot. The operation is safe to trigger repeatedly; rerunning it on
// an unchanged snapshot creates nothing.
func (s *Server) HandleCatalogReconciliation(c *gin.Context) {
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	summary, err := s.catalogSvc.Reconcile(c.Request.Context(), req.Products)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
