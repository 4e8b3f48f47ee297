package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrSessionNotActive  = errors.New("session not active")
	ErrBusy              = errors.New("another participant is presenting")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrTimeout           = errors.New("acknowledgement timeout")
	ErrExternalFailure   = errors.New("external collaborator failure")
	ErrNoSuchRequest     = errors.New("no such pending request")

	ErrNameEmpty            = errors.New("display name empty")
	ErrNameTooLong          = errors.New("display name too long")
	ErrInvalidParticipantID = errors.New("invalid participant id")

	ErrSessionEnded    = errors.New("session ended")
	ErrSlowSubscriber  = errors.New("subscriber too slow")
	ErrSubscriptionEnd = errors.New("subscription closed")
)

// Code is the stable wire name of an error from this package.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrSessionNotActive), errors.Is(err, ErrSessionEnded):
		return "session_not_active"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNoSuchRequest):
		return "no_such_request"
	case errors.Is(err, ErrExternalFailure):
		return "external_failure"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNameEmpty), errors.Is(err, ErrNameTooLong), errors.Is(err, ErrInvalidParticipantID):
		return "invalid_name"
	default:
		return "internal"
	}
}
