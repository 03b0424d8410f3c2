// Package testutil holds helpers shared by handler, resolver and integration
// tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "docket/pkg/domain-errors"
)

// NewJSONRequest builds a request with a JSON body. A string body is sent
// verbatim so tests can post malformed documents; anything else is encoded.
func NewJSONRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		encoded, err := json.Marshal(b)
		require.NoError(t, err, "encode request body")
		r = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewRequest builds a request without a body.
func NewRequest(t *testing.T, method, target string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, target, nil)
}

// DoRequest serves req and returns the recorded response.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// decode reads the recorded body without draining it, so several assertions
// can inspect the same response.
func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "decode response: %s", rr.Body.String())
	return out
}

// UnmarshalResponse decodes the response body into a T.
func UnmarshalResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) *T {
	t.Helper()
	out := decode[T](t, rr)
	return &out
}

func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, rr.Code, "unexpected status; body: %s", rr.Body.String())
}

func AssertStatusOK(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	AssertStatus(t, rr, http.StatusOK)
}

// ErrorResponse is the body every handler writes for a failed request.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// AssertError checks that rr carries code with the status WriteError maps it
// to. Internal errors are reported as internal_error with no description;
// every other code must explain itself.
func AssertError(t *testing.T, rr *httptest.ResponseRecorder, code dErrors.Code) {
	t.Helper()
	AssertStatus(t, rr, dErrors.HTTPStatus(code))
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	body := decode[ErrorResponse](t, rr)
	if code == dErrors.CodeInternal {
		assert.Equal(t, "internal_error", body.Error)
		assert.Empty(t, body.ErrorDescription, "internal errors must not leak details")
		return
	}
	assert.Equal(t, string(code), body.Error)
	assert.NotEmpty(t, body.ErrorDescription, "error_description is required for %s", code)
}

// AssertJSONContains checks one top-level field of a JSON object response.
// Numbers decode as float64.
func AssertJSONContains(t *testing.T, rr *httptest.ResponseRecorder, key string, expected any) {
	t.Helper()
	body := decode[map[string]any](t, rr)
	assert.Equal(t, expected, body[key], "field %q", key)
}

func AssertJSONHasKey(t *testing.T, rr *httptest.ResponseRecorder, key string) {
	t.Helper()
	body := decode[map[string]any](t, rr)
	assert.Contains(t, body, key)
}
