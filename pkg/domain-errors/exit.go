package domainerrors

import "net/http"

// Exit codes are part of the command-line contract. Never renumber.
var exitCodes = map[Code]int{
	CodeInternal:             1,
	CodeValidation:           2,
	CodeNotFound:             3,
	CodeAlreadyRegistered:    4,
	CodeInvalidTransition:    5,
	CodeUnknownReferenceKind: 6,
	CodeCircularReference:    7,
	CodeResolverFailure:      8,
	CodeStorageIO:            9,
	CodeContentIO:            10,
	CodeSelfReference:        11,
	CodeUnknownDocument:      12,
	CodeConflict:             13,
	CodeUnresolvedReference:  14,
	CodeTimeout:              15,
}

// ExitCode maps err to a stable process exit code. A nil error exits 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if code, ok := exitCodes[CodeOf(err)]; ok {
		return code
	}
	return 1
}

var httpStatuses = map[Code]int{
	CodeNotFound:             http.StatusNotFound,
	CodeAlreadyRegistered:    http.StatusConflict,
	CodeInvalidTransition:    http.StatusConflict,
	CodeConflict:             http.StatusConflict,
	CodeUnknownReferenceKind: http.StatusUnprocessableEntity,
	CodeCircularReference:    http.StatusUnprocessableEntity,
	CodeUnresolvedReference:  http.StatusUnprocessableEntity,
	CodeResolverFailure:      http.StatusBadGateway,
	CodeValidation:           http.StatusBadRequest,
	CodeSelfReference:        http.StatusBadRequest,
	CodeUnknownDocument:      http.StatusBadRequest,
	CodeStorageIO:            http.StatusServiceUnavailable,
	CodeContentIO:            http.StatusServiceUnavailable,
	CodeTimeout:              http.StatusGatewayTimeout,
}

// HTTPStatus maps a code to the status written by transports.
func HTTPStatus(code Code) int {
	if status, ok := httpStatuses[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
