package http

import (
	"errors"
	"net/http"

	"live-session-service/internal/domain"
)

var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{domain.ErrSessionNotFound, "session_not_found", http.StatusNotFound},
	{domain.ErrSessionLocked, "session_locked", http.StatusForbidden},
	{domain.ErrSessionEnded, "session_ended", http.StatusGone},
	{domain.ErrInvalidTransition, "invalid_transition", http.StatusConflict},
	{domain.ErrAnswersClosed, "answers_closed", http.StatusConflict},
	{domain.ErrNotHost, "not_host", http.StatusForbidden},
	{domain.ErrParticipantNotFound, "participant_not_found", http.StatusNotFound},
	{domain.ErrPresentationNotFound, "presentation_not_found", http.StatusNotFound},
	{domain.ErrInvalidAnswer, "invalid_answer", http.StatusBadRequest},
	{domain.ErrCodeSpaceExhausted, "code_space_exhausted", http.StatusServiceUnavailable},
	{domain.ErrRateLimited, "rate_limited", http.StatusTooManyRequests},
	{domain.ErrInvalidRequest, "invalid_request", http.StatusBadRequest},
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorCode maps err to the stable code clients switch on.
func errorCode(err error) (string, int) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code, e.status
		}
	}
	return "internal", http.StatusInternalServerError
}

func toErrorPayload(err error) errorPayload {
	code, status := errorCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return errorPayload{Code: code, Message: msg}
}
