package domainerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, CodeStorageIO, "insert document")

	require.Error(t, err)
	assert.True(t, HasCode(err, CodeStorageIO))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "insert document: disk full", err.Error())
	assert.Nil(t, Wrap(nil, CodeInternal, "nothing"))
}

func TestCodeOf(t *testing.T) {
	t.Run("outermost code wins", func(t *testing.T) {
		inner := New(CodeNotFound, "document not found")
		outer := Wrap(inner, CodeResolverFailure, "resolve @doc:prd.md")
		assert.Equal(t, CodeResolverFailure, CodeOf(outer))
	})

	t.Run("fmt wrapping preserves code", func(t *testing.T) {
		err := fmt.Errorf("sweep: %w", New(CodeContentIO, "move failed"))
		assert.Equal(t, CodeContentIO, CodeOf(err))
	})

	t.Run("context errors map to timeout", func(t *testing.T) {
		assert.Equal(t, CodeTimeout, CodeOf(fmt.Errorf("read: %w", context.DeadlineExceeded)))
	})

	t.Run("uncoded errors are internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
		assert.Equal(t, Code(""), CodeOf(nil))
	})
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(New(CodeStorageIO, "x")))
	assert.True(t, IsTransient(New(CodeContentIO, "x")))
	assert.False(t, IsTransient(New(CodeInvalidTransition, "x")))
	assert.False(t, IsTransient(errors.New("x")))
}

func TestExitCodesAreStable(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 3, ExitCode(New(CodeNotFound, "x")))
	assert.Equal(t, 5, ExitCode(New(CodeInvalidTransition, "x")))
	assert.Equal(t, 7, ExitCode(New(CodeCircularReference, "x")))
	assert.Equal(t, 1, ExitCode(errors.New("x")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(CodeNotFound))
	assert.Equal(t, http.StatusConflict, HTTPStatus(CodeAlreadyRegistered))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(CodeInternal))
}
