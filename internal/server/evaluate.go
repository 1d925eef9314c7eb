package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sentra/internal/actorcontext"
	"github.com/smallbiznis/sentra/internal/isolation"
	"github.com/smallbiznis/sentra/internal/orchestrator"
)

type evaluateRequest struct {
	Secret       string   `json:"secret"`
	Payload      string   `json:"payload"`
	ResourceType string   `json:"resource_type"`
	Operation    string   `json:"operation"`
	Endpoint     string   `json:"endpoint"`
	OwnerOrgID   *int64   `json:"owner_org_id,string,omitempty"`
	OwnerUserID  *int64   `json:"owner_user_id,string,omitempty"`
	Scopes       []string `json:"scopes"`
}

// Evaluate runs the full security evaluation for one downstream operation
// and returns the decision. Denials are part of the decision body, not HTTP
// errors: the product layer is the caller here, not the end user.
func (s *Server) Evaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	eval := orchestrator.Request{
		Secret:       req.Secret,
		Payload:      req.Payload,
		ResourceType: isolation.ResourceType(req.ResourceType),
		Operation:    isolation.Operation(req.Operation),
		Endpoint:     req.Endpoint,
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	}
	if req.OwnerOrgID != nil || req.OwnerUserID != nil {
		owner := &isolation.OwnerFields{}
		if req.OwnerOrgID != nil {
			owner.OrgID = snowflake.ID(*req.OwnerOrgID)
		}
		if req.OwnerUserID != nil {
			owner.UserID = snowflake.ID(*req.OwnerUserID)
		}
		eval.Owner = owner
	}
	if req.Secret == "" {
		eval.Actor = s.actorFromContext(c, req.Scopes)
	}

	start := time.Now()
	decision := s.orch.Evaluate(c.Request.Context(), eval)
	s.orch.RecordOutcome(c.Request.Context(), decision, decisionStatus(decision), time.Since(start))

	if decision.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
	}

	c.JSON(http.StatusOK, decision)
}

// decisionStatus maps the evaluation verdict onto the status the downstream
// operation would have seen, so quota accounting reflects attempted load.
func decisionStatus(d orchestrator.Decision) int {
	switch {
	case d.Allowed:
		return http.StatusOK
	case strings.HasPrefix(d.Reason, "rate_limited"):
		return http.StatusTooManyRequests
	default:
		return http.StatusForbidden
	}
}

func (s *Server) actorFromContext(c *gin.Context, scopes []string) *isolation.Actor {
	ctx := c.Request.Context()
	orgID, okOrg := actorcontext.OrgIDFromContext(ctx)
	userID, okUser := actorcontext.UserIDFromContext(ctx)
	if !okOrg && !okUser {
		return nil
	}

	return &isolation.Actor{
		UserID: userID,
		OrgID:  orgID,
		Scopes: scopes,
	}
}
