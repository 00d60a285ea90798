package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/commissary/internal/audit/domain"
	"github.com/smallbiznis/commissary/pkg/db/pagination"
)

type listAuditLogsQuery struct {
	PageToken  string `form:"page_token"`
	PageSize   int32  `form:"page_size"`
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	TargetID   string `form:"target_id"`
	StartAt    string `form:"start_at"`
	EndAt      string `form:"end_at"`
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	var q listAuditLogsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{
			PageToken: q.PageToken,
			PageSize:  q.PageSize,
		},
		Action:     q.Action,
		TargetType: q.TargetType,
		TargetID:   q.TargetID,
	}

	if q.StartAt != "" {
		t, err := time.Parse(time.RFC3339, q.StartAt)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.StartAt = &t
	}
	if q.EndAt != "" {
		t, err := time.Parse(time.RFC3339, q.EndAt)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.EndAt = &t
	}

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
