package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError(t *testing.T) {
	cause := stderrors.New("boom")
	app := FromError(cause)
	assert.Equal(t, http.StatusInternalServerError, app.HTTPStatus)
	assert.ErrorIs(t, app, cause)

	wrapped := fmt.Errorf("ctx: %w", ErrBodyTooLarge)
	assert.Same(t, ErrBodyTooLarge, FromError(wrapped))
}

func TestWithDetail_DoesNotMutate(t *testing.T) {
	e := ErrBadRequest.WithDetail("username is required")
	assert.Equal(t, "username is required", e.Detail)
	assert.Empty(t, ErrBadRequest.Detail)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "rid-1")
	WriteError(rec, ErrInvalidCredentials.WithCause(stderrors.New("secret detail")))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_CREDENTIALS", body["code"])
	assert.Equal(t, "rid-1", body["request_id"])
	assert.NotContains(t, rec.Body.String(), "secret detail")
}
