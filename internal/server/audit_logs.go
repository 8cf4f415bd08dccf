package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/webafza/billing/internal/audit/domain"
	"github.com/webafza/billing/internal/authorization"
)

func (s *Server) listAuditLogs(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	if err := s.authzSvc.Authorize(c.Request.Context(), actor, authorization.ObjectAuditLog, authorization.ActionAuditLogView); err != nil {
		AbortWithError(c, err)
		return
	}

	var req auditdomain.ListAuditLogRequest
	if err := c.ShouldBindQuery(&req.Pagination); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.Action = strings.TrimSpace(c.Query("action"))
	req.TargetType = strings.TrimSpace(c.Query("target_type"))
	req.TargetID = strings.TrimSpace(c.Query("target_id"))
	if raw := strings.TrimSpace(c.Query("start_at")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("start_at", "invalid_time", "must be RFC3339"))
			return
		}
		req.StartAt = &t
	}
	if raw := strings.TrimSpace(c.Query("end_at")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("end_at", "invalid_time", "must be RFC3339"))
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
