package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/facturasv/dte-engine/internal/authority"
	counterpartydomain "github.com/facturasv/dte-engine/internal/counterparty/domain"
	documentdomain "github.com/facturasv/dte-engine/internal/document/domain"
	templatedomain "github.com/facturasv/dte-engine/internal/template/domain"
)

type apiError struct {
	Status  int      `json:"-"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (e *apiError) Error() string { return e.Code }

func invalidRequestError(message string) *apiError {
	return &apiError{Status: http.StatusBadRequest, Code: "invalid_request", Message: message}
}

// AbortWithError maps domain sentinels onto HTTP statuses and writes the JSON
// error body.
func AbortWithError(c *gin.Context, err error) {
	var api *apiError
	if errors.As(err, &api) {
		c.AbortWithStatusJSON(api.Status, gin.H{"error": api})
		return
	}

	var rejection *authority.RejectionError
	if errors.As(err, &rejection) {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": &apiError{
			Code:    "authority_rejected",
			Message: rejection.Message(),
			Details: rejection.Observations,
		}})
		return
	}

	status := http.StatusInternalServerError
	code := "internal"
	switch {
	case errors.Is(err, documentdomain.ErrInvalidTenant),
		errors.Is(err, documentdomain.ErrInvalidPayload),
		errors.Is(err, documentdomain.ErrInvalidType),
		errors.Is(err, documentdomain.ErrAlreadyCancelled),
		errors.Is(err, templatedomain.ErrInvalidTransition),
		errors.Is(err, templatedomain.ErrInvalidInterval),
		errors.Is(err, templatedomain.ErrInvalidAnchorDay),
		errors.Is(err, templatedomain.ErrInvalidDayOfWeek),
		errors.Is(err, templatedomain.ErrInvalidLineItems),
		errors.Is(err, templatedomain.ErrInvalidTenant):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, documentdomain.ErrDocumentNotFound),
		errors.Is(err, templatedomain.ErrTemplateNotFound),
		errors.Is(err, counterpartydomain.ErrCounterpartyNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, counterpartydomain.ErrDuplicateDocument):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, documentdomain.ErrNotSigned),
		errors.Is(err, documentdomain.ErrAlreadySigned),
		errors.Is(err, documentdomain.ErrSignerNotLoaded):
		status, code = http.StatusPreconditionFailed, "precondition_failed"
	case errors.Is(err, templatedomain.ErrTemplateUnavailable):
		status, code = http.StatusConflict, "unavailable"
	case errors.Is(err, authority.ErrAuthFailed):
		status, code = http.StatusBadGateway, "auth_failed"
	}

	c.AbortWithStatusJSON(status, gin.H{"error": &apiError{
		Code:    code,
		Message: err.Error(),
	}})
}
