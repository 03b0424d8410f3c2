// Package httputil writes JSON responses and coded errors for chi handlers.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "docket/pkg/domain-errors"
)

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON encodes body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError maps err's code to a status and writes {error, error_description}.
// Internal errors omit the description so driver messages never leak.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{Error: string(code)}
	if code == dErrors.CodeInternal {
		body.Error = "internal_error"
	} else {
		body.ErrorDescription = err.Error()
	}
	WriteJSON(w, dErrors.HTTPStatus(code), body)
}
