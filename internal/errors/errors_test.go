package errors_test

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/victornm/chattrivia/internal/errors"
)

func TestConvert(t *testing.T) {
	tests := map[string]struct {
		err      error
		wantCode errors.Code
		wantHTTP int
	}{
		"unknown error should be internal": {
			err:      stderrors.New("boom"),
			wantCode: errors.CodeInternal,
			wantHTTP: http.StatusInternalServerError,
		},

		"wrapped error should keep its code": {
			err:      fmt.Errorf("start: %w", errors.NotFound("no contest")),
			wantCode: errors.CodeNotFound,
			wantHTTP: http.StatusNotFound,
		},

		"failed precondition should be a conflict": {
			err:      errors.New(errors.CodeFailedPrecondition),
			wantCode: errors.CodeFailedPrecondition,
			wantHTTP: http.StatusConflict,
		},

		"invalid argument should be a bad request": {
			err:      errors.InvalidArgument("rounds must be positive, got %d", -1),
			wantCode: errors.CodeInvalidArgument,
			wantHTTP: http.StatusBadRequest,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			e := errors.Convert(tt.err)
			require.Equal(t, tt.wantCode, e.Code)
			require.Equal(t, tt.wantHTTP, e.HTTPStatusCode())
			require.Equal(t, codes.Code(tt.wantCode), status.Code(e))
		})
	}
}

func TestError_Is(t *testing.T) {
	sentinel := errors.InvalidArgument("question bank is empty")

	require.ErrorIs(t, fmt.Errorf("new session: %w", sentinel), sentinel)
	require.ErrorIs(t, errors.InvalidArgument("question bank is empty"), sentinel, "errors with the same code and message should match")
	require.NotErrorIs(t, errors.InvalidArgument("rounds must be positive"), sentinel)
	require.NotErrorIs(t, errors.NotFound("question bank is empty"), sentinel)
}

func TestError_Unwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	e := errors.Internal(cause)

	require.ErrorIs(t, e, cause)
	require.Contains(t, e.Error(), "connection refused")
}

func TestError_JSON(t *testing.T) {
	b, err := json.Marshal(errors.NotFound("no contest running in channel %s", "c1"))
	require.NoError(t, err)
	require.JSONEq(t, `{"code": "not_found", "message": "no contest running in channel c1"}`, string(b))
}
