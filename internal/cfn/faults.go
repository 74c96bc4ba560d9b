package cfn

import (
	"errors"
	"net/http"
)

// Fault codes of the API surface. The set is closed: every failure a caller
// can see carries one of these codes.
const (
	CodeAccessDenied                = "AccessDenied"
	CodeInvalidAction               = "InvalidAction"
	CodeInvalidParameterCombination = "InvalidParameterCombination"
	CodeInvalidParameterValue       = "InvalidParameterValue"
	CodeInternalFailure             = "InternalFailure"
	CodeMissingParameter            = "MissingParameter"
	CodeResourceNotFound            = "ResourceNotFound"
)

// Fault is a typed, user-facing error response, distinct from internal
// errors: it carries only the code and a human-readable detail, never the
// engine's or transport's internals.
type Fault struct {
	Code   string
	Status int
	Detail string
}

func (f *Fault) Error() string { return f.Code + ": " + f.Detail }

// SenderType reports the query-protocol error type for the fault.
func (f *Fault) SenderType() string {
	if f.Status >= 500 {
		return "Server"
	}
	return "Sender"
}

func AccessDenied(detail string) *Fault {
	return &Fault{Code: CodeAccessDenied, Status: http.StatusForbidden, Detail: detail}
}

func InvalidAction(detail string) *Fault {
	return &Fault{Code: CodeInvalidAction, Status: http.StatusBadRequest, Detail: detail}
}

func InvalidParameterCombination(detail string) *Fault {
	return &Fault{Code: CodeInvalidParameterCombination, Status: http.StatusBadRequest, Detail: detail}
}

func InvalidParameterValue(detail string) *Fault {
	return &Fault{Code: CodeInvalidParameterValue, Status: http.StatusBadRequest, Detail: detail}
}

func InternalFailure(detail string) *Fault {
	return &Fault{Code: CodeInternalFailure, Status: http.StatusInternalServerError, Detail: detail}
}

func MissingParameter(detail string) *Fault {
	return &Fault{Code: CodeMissingParameter, Status: http.StatusBadRequest, Detail: detail}
}

func ResourceNotFound(detail string) *Fault {
	return &Fault{Code: CodeResourceNotFound, Status: http.StatusNotFound, Detail: detail}
}

// remoteCoder is implemented by engine RPC errors that carry the engine's
// own failure classification.
type remoteCoder interface {
	RemoteCode() string
	RemoteMessage() string
}

// MapRemoteError translates a failure from an engine invocation into a
// fault. Faults raised locally pass through unchanged. Engine-reported
// errors are classified by their remote code and keep the engine's message
// text. Anything else (transport failures included) becomes an
// InternalFailure with a generic detail; the caller is expected to log the
// underlying error before discarding it.
func MapRemoteError(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}

	var rc remoteCoder
	if errors.As(err, &rc) {
		msg := rc.RemoteMessage()
		switch rc.RemoteCode() {
		case "StackNotFound", "ResourceNotFound", "PhysicalResourceNotFound", "EventNotFound":
			return ResourceNotFound(msg)
		case "Forbidden", "NotAuthorized":
			return AccessDenied(msg)
		case "InvalidTemplate", "InvalidParameter", "StackExists",
			"StackValidationFailed", "ValueError", "AttributeError":
			return InvalidParameterValue(msg)
		default:
			return InternalFailure(msg)
		}
	}

	return InternalFailure("The request processing has failed due to an internal error")
}
