package models

// ErrorType classifies API errors for clients.
type ErrorType string

const (
	GeneralErrorType     ErrorType = "GeneralError"
	ValidationErrorType  ErrorType = "ValidationError"
	NotFoundErrorType    ErrorType = "NotFoundError"
	UnavailableErrorType ErrorType = "UnavailableError"
)

// APIResponse is the envelope used by every JSON endpoint except the
// notification check trigger.
type APIResponse struct {
	Status    string    `json:"status"`
	Data      any       `json:"data,omitempty"`
	Message   string    `json:"message,omitempty"`
	ErrorType ErrorType `json:"error_type,omitempty"`
}
