package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/facturasv/dte-engine/internal/schedule"
	templatedomain "github.com/facturasv/dte-engine/internal/template/domain"
)

type createTemplateRequest struct {
	CounterpartyID string                    `json:"counterpartyId"`
	DocumentType   string                    `json:"documentType"`
	Interval       string                    `json:"interval"`
	AnchorDay      *int                      `json:"anchorDay"`
	DayOfWeek      *int                      `json:"dayOfWeek"`
	Mode           string                    `json:"mode"`
	AutoTransmit   bool                      `json:"autoTransmit"`
	LineItems      []templatedomain.LineItem `json:"lineItems"`
	StartDate      string                    `json:"startDate"`
	EndDate        *string                   `json:"endDate"`
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func (s *Server) CreateTemplate(c *gin.Context) {
	tenant, err := tenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("malformed request body"))
		return
	}

	var counterparty snowflake.ID
	if raw := strings.TrimSpace(req.CounterpartyID); raw != "" {
		counterparty, err = snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, invalidRequestError("invalid counterpartyId"))
			return
		}
	}

	startDate := time.Now().UTC()
	if raw := strings.TrimSpace(req.StartDate); raw != "" {
		startDate, err = parseDate(raw)
		if err != nil {
			AbortWithError(c, invalidRequestError("invalid startDate"))
			return
		}
	}

	var endDate *time.Time
	if req.EndDate != nil && strings.TrimSpace(*req.EndDate) != "" {
		t, err := parseDate(strings.TrimSpace(*req.EndDate))
		if err != nil {
			AbortWithError(c, invalidRequestError("invalid endDate"))
			return
		}
		endDate = &t
	}

	mode := templatedomain.TemplateMode(strings.ToUpper(strings.TrimSpace(req.Mode)))
	if mode == "" {
		mode = templatedomain.ModeDraft
	}

	resp, err := s.templateSvc.Create(c.Request.Context(), templatedomain.CreateRequest{
		TenantID:       tenant,
		CounterpartyID: counterparty,
		DocumentType:   strings.TrimSpace(req.DocumentType),
		Interval:       schedule.Interval(strings.ToUpper(strings.TrimSpace(req.Interval))),
		AnchorDay:      req.AnchorDay,
		DayOfWeek:      req.DayOfWeek,
		Mode:           mode,
		AutoTransmit:   req.AutoTransmit,
		LineItems:      req.LineItems,
		StartDate:      startDate,
		EndDate:        endDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListTemplates(c *gin.Context) {
	tenant, err := tenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.templateSvc.List(c.Request.Context(), tenant, templatedomain.ListRequest{
		Status: strings.ToUpper(strings.TrimSpace(c.Query("status"))),
		Limit:  queryLimit(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTemplate(c *gin.Context) {
	tenant, err := tenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.templateSvc.GetByID(c.Request.Context(), tenant, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) TemplateHistory(c *gin.Context) {
	tenant, err := tenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.templateSvc.History(c.Request.Context(), tenant, id, queryLimit(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PauseTemplate(c *gin.Context) {
	s.transitionTemplate(c, s.templateSvc.Pause)
}

func (s *Server) ResumeTemplate(c *gin.Context) {
	s.transitionTemplate(c, s.templateSvc.Resume)
}

func (s *Server) CancelTemplate(c *gin.Context) {
	s.transitionTemplate(c, s.templateSvc.Cancel)
}

func (s *Server) transitionTemplate(c *gin.Context, fn func(ctx context.Context, tenantID, id snowflake.ID) (*templatedomain.RecurringTemplate, error)) {
	tenant, err := tenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := fn(c.Request.Context(), tenant, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// RunTemplateNow forces a single execution outside the daily tick. The
// template is resolved tenant-scoped first so one tenant cannot trigger
// another tenant's template.
func (s *Server) RunTemplateNow(c *gin.Context) {
	tenant, err := tenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tmpl, err := s.templateSvc.GetByID(c.Request.Context(), tenant, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	docID, err := s.sched.ProcessTemplate(c.Request.Context(), tmpl.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"documentId": docID.String()}})
}
