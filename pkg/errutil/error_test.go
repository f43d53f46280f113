package errutil

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstructorsMapToHTTPStatus(t *testing.T) {
	cause := errors.New("boom")
	cases := []struct {
		err  error
		code CoreStatus
		http int
	}{
		{NotFound("missing", cause), StatusNotFound, http.StatusNotFound},
		{UnprocessableEntity("bad transition", cause), StatusUnprocessableEntity, http.StatusUnprocessableEntity},
		{Conflict("taken", nil), StatusConflict, http.StatusConflict},
		{BadRequest("bad body", cause), StatusBadRequest, http.StatusBadRequest},
		{ValidationFailed("invalid", nil), StatusValidationFailed, http.StatusBadRequest},
		{Internal("oops", cause), StatusInternal, http.StatusInternalServerError},
		{Unauthorized("no secret", nil), StatusUnauthorized, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		be := FromError(tc.err)
		require.Equal(t, tc.code, be.Code)
		require.Equal(t, tc.http, be.Code.HTTPStatus())
	}
}

func TestCauseIsWrapped(t *testing.T) {
	cause := errors.New("row missing")
	err := NotFound("experiment not found", cause, WithDetails(Detail{Field: "id", Message: "unknown"}))

	require.True(t, errors.Is(err, cause))
	be := FromError(err)
	require.Equal(t, []Detail{{Field: "id", Message: "unknown"}}, be.Details)
	require.Equal(t, "[NOT_FOUND] experiment not found: row missing", err.Error())
}

func TestFromErrorContextErrors(t *testing.T) {
	require.Equal(t, StatusClientClosedRequest, FromError(context.Canceled).Code)
	require.Equal(t, StatusTimeout, FromError(context.DeadlineExceeded).Code)
	require.Equal(t, http.StatusGatewayTimeout, FromError(context.DeadlineExceeded).Code.HTTPStatus())
	require.Equal(t, StatusInternal, FromError(errors.New("plain")).Code)
}
