package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no live session owns the code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionLocked is returned when late joining is disabled and the session already started.
	ErrSessionLocked = errors.New("session is locked")
	// ErrSessionEnded is returned for any operation on a session that has ended.
	ErrSessionEnded = errors.New("session has ended")
	// ErrInvalidTransition is returned when a host command is out of order.
	ErrInvalidTransition = errors.New("invalid slide transition")
	// ErrAnswersClosed is returned for submissions outside the show state of the current slide.
	ErrAnswersClosed = errors.New("answers are closed")
	// ErrNotHost is returned when a host-only command comes from a participant connection.
	ErrNotHost = errors.New("command requires host")
	// ErrParticipantNotFound is returned when a connection acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrPresentationNotFound indicates the presentation could not be loaded.
	ErrPresentationNotFound = errors.New("presentation not found")
	// ErrInvalidAnswer indicates the payload does not fit the slide kind.
	ErrInvalidAnswer = errors.New("invalid answer payload")
	// ErrCodeTaken is returned by a registry when a code is already reserved.
	ErrCodeTaken = errors.New("session code already in use")
	// ErrCodeSpaceExhausted is returned when no free code was found within the retry budget.
	ErrCodeSpaceExhausted = errors.New("no free session code")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidRequest     = errors.New("invalid request")
)
