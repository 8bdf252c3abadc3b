package router

import (
	"errors"

	"desacordo-backend/internal/directory"
	"desacordo-backend/internal/events"
)

var (
	ErrForbidden      = errors.New("missing permission")
	ErrImpersonation  = errors.New("user id does not match the session")
	ErrNotParticipant = errors.New("not a participant of this channel")
)

// Classify maps an error returned while handling an event to the error kind
// sent back to the client.
func Classify(err error) events.ErrorKind {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, ErrImpersonation),
		errors.Is(err, ErrNotParticipant),
		errors.Is(err, directory.ErrNotMember),
		errors.Is(err, directory.ErrNotAddressee):
		return events.ErrorAuthorization
	case errors.Is(err, directory.ErrNotFound),
		errors.Is(err, events.ErrUnknownKind):
		return events.ErrorNotFound
	case errors.Is(err, directory.ErrAlreadyExists),
		errors.Is(err, directory.ErrAlreadyMember),
		errors.Is(err, directory.ErrSelfRequest),
		errors.Is(err, directory.ErrDuplicateRequest),
		errors.Is(err, directory.ErrAlreadyFriends),
		errors.Is(err, directory.ErrRequestClosed),
		errors.Is(err, directory.ErrWrongChannelType),
		errors.Is(err, directory.ErrVanityTaken),
		errors.Is(err, directory.ErrBoostRequired),
		errors.Is(err, events.ErrMalformedFrame),
		errors.Is(err, events.ErrInvalidPayload):
		return events.ErrorValidation
	}
	return events.ErrorInternal
}

// errorFrame builds the error event for err. Internal errors are not
// described to the client.
func errorFrame(event string, err error) []byte {
	kind := Classify(err)
	message := err.Error()
	if kind == events.ErrorInternal {
		message = "internal error"
	}
	return events.ErrorFrame(event, kind, message)
}
