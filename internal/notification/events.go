// Package notification dispatches lifecycle events to tenant webhooks.
// Delivery is best effort; a failed notification never affects the document
// lifecycle that produced it.
package notification

// Lifecycle event types.
const (
	EventDocumentCreated   = "document.created"
	EventDocumentSigned    = "document.signed"
	EventDocumentApproved  = "document.approved"
	EventDocumentRejected  = "document.rejected"
	EventDocumentCancelled = "document.cancelled"
	EventTemplateSuspended = "template.suspended"
)

// DocumentPayload captures the minimal data consumers need to react to a
// document lifecycle transition.
type DocumentPayload struct {
	DocumentID     string `json:"document_id"`
	GenerationCode string `json:"generation_code"`
	ControlNumber  string `json:"control_number"`
	State          string `json:"state"`
	Message        string `json:"message,omitempty"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p DocumentPayload) ToMap() map[string]any {
	payload := map[string]any{
		"document_id":     p.DocumentID,
		"generation_code": p.GenerationCode,
		"control_number":  p.ControlNumber,
		"state":           p.State,
	}
	if p.Message != "" {
		payload["message"] = p.Message
	}
	return payload
}

// TemplatePayload describes a recurring-template event.
type TemplatePayload struct {
	TemplateID          string `json:"template_id"`
	Status              string `json:"status"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p TemplatePayload) ToMap() map[string]any {
	payload := map[string]any{
		"template_id":          p.TemplateID,
		"status":               p.Status,
		"consecutive_failures": p.ConsecutiveFailures,
	}
	if p.LastError != "" {
		payload["last_error"] = p.LastError
	}
	return payload
}
