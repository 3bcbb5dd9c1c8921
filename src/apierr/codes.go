package apierr

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeNotFound     Code = "NOT_FOUND"
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeDuplicate    Code = "DUPLICATE"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeUnsupported  Code = "UNSUPPORTED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeNotFound:
		return codes.NotFound
	case CodeBadRequest:
		return codes.FailedPrecondition
	case CodeDuplicate:
		return codes.AlreadyExists
	case CodeUnauthorized:
		return codes.PermissionDenied
	case CodeUnsupported:
		return codes.Unimplemented
	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeDuplicate:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
