package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sentra/internal/actorcontext"
	auditdomain "github.com/smallbiznis/sentra/internal/audit/domain"
)

type auditQueryParams struct {
	EventType    string `form:"event_type"`
	Severity     string `form:"severity"`
	Outcome      string `form:"outcome"`
	ResourceType string `form:"resource_type"`
	StartAt      string `form:"start_at"`
	EndAt        string `form:"end_at"`
	PageToken    string `form:"page_token"`
	PageSize     int    `form:"page_size"`
}

func (s *Server) ListAuditEvents(c *gin.Context) {
	req, err := s.auditListRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.auditSvc.Query(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) AuditStats(c *gin.Context) {
	req, err := s.auditListRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	stats, err := s.auditSvc.Stats(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (s *Server) ExportAuditEvents(c *gin.Context) {
	req, err := s.auditListRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	format := auditdomain.ExportFormat(c.DefaultQuery("format", string(auditdomain.FormatJSON)))
	report, err := s.auditSvc.ExportReport(c.Request.Context(), req, format)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	contentType := "application/json"
	filename := "audit-events.json"
	if format == auditdomain.FormatCSV {
		contentType = "text/csv"
		filename = "audit-events.csv"
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, report)
}

// auditListRequest maps query params to a list request. Queries are always
// pinned to the caller's organization; there is no cross-org audit read.
func (s *Server) auditListRequest(c *gin.Context) (auditdomain.ListRequest, error) {
	var params auditQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return auditdomain.ListRequest{}, ErrInvalidRequest
	}

	orgID, ok := actorcontext.OrgIDFromContext(c.Request.Context())
	if !ok || orgID == 0 {
		return auditdomain.ListRequest{}, ErrUnauthorized
	}

	req := auditdomain.ListRequest{
		EventType:    params.EventType,
		Severity:     auditdomain.Severity(params.Severity),
		Outcome:      auditdomain.Outcome(params.Outcome),
		ResourceType: params.ResourceType,
		ActorOrgID:   orgID,
	}
	req.PageToken = params.PageToken
	req.PageSize = params.PageSize

	if params.StartAt != "" {
		start, err := time.Parse(time.RFC3339, params.StartAt)
		if err != nil {
			return auditdomain.ListRequest{}, auditdomain.ErrInvalidTimeRange
		}
		req.StartAt = &start
	}
	if params.EndAt != "" {
		end, err := time.Parse(time.RFC3339, params.EndAt)
		if err != nil {
			return auditdomain.ListRequest{}, auditdomain.ErrInvalidTimeRange
		}
		req.EndAt = &end
	}

	return req, nil
}
