package errprocess

import "errors"

// error kinds surfaced to callers of the sync core
var (
	// ErrNoConnectivity transport could not reach the backend
	ErrNoConnectivity = errors.New("no internet connection, please check your network and try again")
	// ErrUnauthenticated identity missing or credential expired
	ErrUnauthenticated = errors.New("authentication expired, please log in again")
	// ErrRejected backend refused the request (validation / authorization)
	ErrRejected = errors.New("request rejected")
	// ErrEmptyDraft message has neither text nor attachments
	ErrEmptyDraft = errors.New("message has no text or attachments")
	// ErrNoConversation no conversation is open
	ErrNoConversation = errors.New("no conversation is open")
	// ErrInvalidArgument bad limit / cursor / id
	ErrInvalidArgument = errors.New("invalid argument")
)

type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Is(target error) bool { return target == e.kind }

func (e *kindError) Unwrap() error { return e.cause }

// Wrap tag cause with kind; errors.Is(err, kind) holds and errors.Unwrap gives cause
func Wrap(kind, cause error) error {
	if cause == nil {
		return kind
	}
	if errors.Is(cause, kind) {
		return cause
	}
	return &kindError{kind: kind, cause: cause}
}

// IsNetwork report whether err is a connectivity failure
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNoConnectivity)
}

// IsAuth report whether err is an authentication failure
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}
