package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xvierd/stepflow/internal/domain"
)

// APIError is the JSON error envelope returned by every endpoint.
type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

func newAPIError(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

func badRequest(code, message string) *APIError {
	return newAPIError(http.StatusBadRequest, code, message)
}

func unauthorized(message string) *APIError {
	if message == "" {
		message = "unauthorized"
	}
	return newAPIError(http.StatusUnauthorized, "unauthorized", message)
}

func internalError() *APIError {
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal server error")
}

var domainErrors = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrTaskNotFound, http.StatusNotFound, "task_not_found"},
	{domain.ErrStepNotFound, http.StatusNotFound, "step_not_found"},
	{domain.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{domain.ErrNoTask, http.StatusBadRequest, "no_task"},
	{domain.ErrEmptyTaskTitle, http.StatusBadRequest, "empty_title"},
	{domain.ErrEmptyStepTitle, http.StatusBadRequest, "empty_title"},
	{domain.ErrEmptyDistraction, http.StatusBadRequest, "empty_text"},
	{domain.ErrNoSteps, http.StatusUnprocessableEntity, "no_steps"},
	{domain.ErrSessionAlreadyActive, http.StatusConflict, "session_active"},
	{domain.ErrNoActiveSession, http.StatusConflict, "no_active_session"},
	{domain.ErrSessionTerminal, http.StatusConflict, "session_ended"},
	{domain.ErrBreakActive, http.StatusConflict, "break_active"},
	{domain.ErrNoBreak, http.StatusConflict, "no_break"},
	{domain.ErrNothingToResume, http.StatusConflict, "nothing_to_resume"},
}

// fromError maps domain sentinels to API errors. Anything else is internal.
func fromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, m := range domainErrors {
		if errors.Is(err, m.err) {
			return newAPIError(m.status, m.code, m.err.Error())
		}
	}
	return internalError()
}

func writeError(c *gin.Context, apiErr *APIError) {
	if apiErr == nil {
		apiErr = internalError()
	}
	body := gin.H{
		"code":    apiErr.Code,
		"message": apiErr.Message,
	}
	if apiErr.Details != nil {
		body["details"] = apiErr.Details
	}
	c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": body})
}
