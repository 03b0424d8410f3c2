package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/httputil"
)

func TestAssertError(t *testing.T) {
	t.Run("domain error carries its code and description", func(t *testing.T) {
		rr := httptest.NewRecorder()
		httputil.WriteError(rr, dErrors.New(dErrors.CodeNotFound, "document not found"))

		AssertError(t, rr, dErrors.CodeNotFound)
		body := UnmarshalResponse[ErrorResponse](t, rr)
		assert.Equal(t, "document not found", body.ErrorDescription)
	})

	t.Run("internal error is opaque", func(t *testing.T) {
		rr := httptest.NewRecorder()
		httputil.WriteError(rr, dErrors.New(dErrors.CodeInternal, "db password rejected"))

		AssertError(t, rr, dErrors.CodeInternal)
		assert.NotContains(t, rr.Body.String(), "password")
	})
}

func TestJSONAssertionsShareTheBody(t *testing.T) {
	rr := httptest.NewRecorder()
	httputil.WriteJSON(rr, http.StatusCreated, map[string]any{"path": "docs/prd.md", "version": 2})

	AssertStatus(t, rr, http.StatusCreated)
	AssertJSONContains(t, rr, "path", "docs/prd.md")
	AssertJSONContains(t, rr, "version", 2.0)
	AssertJSONHasKey(t, rr, "version")
}

func TestNewJSONRequest(t *testing.T) {
	raw := NewJSONRequest(t, http.MethodPost, "/documents", `{"path":`)
	body, err := io.ReadAll(raw.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"path":`, string(body), "strings are sent verbatim")
	assert.Equal(t, "application/json", raw.Header.Get("Content-Type"))

	encoded := NewJSONRequest(t, http.MethodPost, "/documents", map[string]string{"path": "docs/prd.md"})
	body, err = io.ReadAll(encoded.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"docs/prd.md"}`, string(body))
}
