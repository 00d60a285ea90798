package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	partnerdomain "github.com/smallbiznis/commissary/internal/partner/domain"
)

func (s *Server) GetPartner(c *gin.Context) {
	raw, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || raw <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	p, err := s.partnerRepo.FindByID(c.Request.Context(), s.db, snowflake.ID(raw))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if p == nil {
		AbortWithError(c, partnerdomain.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, p)
}
