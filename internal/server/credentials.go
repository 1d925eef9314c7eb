package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	credentialdomain "github.com/smallbiznis/sentra/internal/credential/domain"
	"github.com/smallbiznis/sentra/internal/ratelimit"
	"github.com/smallbiznis/sentra/internal/scope"
)

type createCredentialRequest struct {
	Name                 string   `json:"name"`
	Scopes               []string `json:"scopes"`
	PerMinute            int64    `json:"per_minute"`
	PerHour              int64    `json:"per_hour"`
	PerDay               int64    `json:"per_day"`
	Burst                int      `json:"burst"`
	RotationIntervalDays int      `json:"rotation_interval_days"`
}

func (s *Server) ListCredentials(c *gin.Context) {
	creds, err := s.credentialSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, creds)
}

func (s *Server) CreateCredential(c *gin.Context) {
	var req createCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.credentialSvc.Issue(c.Request.Context(), credentialdomain.IssueRequest{
		Name:   req.Name,
		Scopes: req.Scopes,
		Quota: ratelimit.QuotaConfig{
			PerMinute: req.PerMinute,
			PerHour:   req.PerHour,
			PerDay:    req.PerDay,
			Burst:     req.Burst,
		},
		RotationIntervalDays: req.RotationIntervalDays,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) RotateCredential(c *gin.Context) {
	id, ok := credentialIDParam(c)
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.credentialSvc.Rotate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) RevokeCredential(c *gin.Context) {
	id, ok := credentialIDParam(c)
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.credentialSvc.Revoke(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListCredentialScopes(c *gin.Context) {
	c.JSON(http.StatusOK, scope.All())
}

func credentialIDParam(c *gin.Context) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return snowflake.ID(parsed), true
}
