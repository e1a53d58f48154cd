package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	documentdomain "github.com/facturasv/dte-engine/internal/document/domain"
)

const tenantHeader = "X-Tenant-ID"

func tenantID(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.GetHeader(tenantHeader))
	if raw == "" {
		return 0, invalidRequestError("missing " + tenantHeader + " header")
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		// Zero is the scheduler-internal unscoped load; it must never be
		// reachable from a request header.
		return 0, invalidRequestError("invalid " + tenantHeader + " header")
	}
	return id, nil
}

func pathID(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param("id"))
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, invalidRequestError("invalid id")
	}
	return id, nil
}

func queryLimit(c *gin.Context) int {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

type createDocumentRequest struct {
	DocumentType string         `json:"documentType"`
	Payload      map[string]any `json:"payload"`
}

func (s *Server) CreateDocument(c *gin.Context) {
	tenant, err := tenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("malformed request body"))
		return
	}

	resp, err := s.docSvc.Create(c.Request.Context(), documentdomain.CreateRequest{
		TenantID:     tenant,
		DocumentType: strings.TrimSpace(req.DocumentType),
		Payload:      req.Payload,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListDocuments(c *gin.Context) {
	tenant, err := tenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.docSvc.List(c.Request.Context(), tenant, documentdomain.ListRequest{
		State:        strings.TrimSpace(c.Query("state")),
		DocumentType: strings.TrimSpace(c.Query("documentType")),
		Limit:        queryLimit(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetDocument(c *gin.Context) {
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

	resp, err := s.docSvc.GetByID(c.Request.Context(), tenant, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SignDocument(c *gin.Context) {
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

	resp, err := s.docSvc.Sign(c.Request.Context(), tenant, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) TransmitDocument(c *gin.Context) {
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

	resp, err := s.docSvc.Transmit(c.Request.Context(), tenant, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type cancelDocumentRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) CancelDocument(c *gin.Context) {
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

	var req cancelDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("malformed request body"))
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		AbortWithError(c, invalidRequestError("reason is required"))
		return
	}

	resp, err := s.docSvc.Cancel(c.Request.Context(), tenant, id, reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
