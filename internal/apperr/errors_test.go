package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSentinel = errors.New("sentinel")

func TestWrapKeepsCauseComparable(t *testing.T) {
	err := Wrap(CodeNotFound, errSentinel, "ride not found")
	wrapped := fmt.Errorf("accept: %w", err)

	require.ErrorIs(t, wrapped, errSentinel)
	typed := As(wrapped)
	require.NotNil(t, typed)
	assert.Equal(t, CodeNotFound, typed.Code())
	assert.Equal(t, "ride not found", typed.Message())
}

func TestConflictSharesNotFoundShape(t *testing.T) {
	err := Conflict("ride not found", nil)
	assert.Equal(t, CodeNotFound, err.Code())
	assert.Equal(t, ReasonRaceLost, err.Reason())
	assert.Equal(t, http.StatusNotFound, MetadataFor(err.Code()).HTTPStatus)
}

func TestMetadataStatuses(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:          http.StatusBadRequest,
		CodeForbidden:           http.StatusForbidden,
		CodeNotFound:            http.StatusNotFound,
		CodeInsufficientBalance: http.StatusBadRequest,
		CodeDependency:          http.StatusNotFound,
		CodeInternal:            http.StatusInternalServerError,
		Code("bogus"):           http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, MetadataFor(code).HTTPStatus, string(code))
	}
}

func TestErrorStringIncludesReason(t *testing.T) {
	err := NotFound("offer not found", ReasonNotOwner)
	assert.Equal(t, "offer not found [not_owner]", err.Error())
	assert.True(t, IsCode(err, CodeNotFound))
	assert.False(t, IsCode(errSentinel, CodeNotFound))
}

func TestValidationDetails(t *testing.T) {
	err := Validation("invalid ride", map[string]string{"origin": "is required"})
	details, ok := err.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["origin"])
}
