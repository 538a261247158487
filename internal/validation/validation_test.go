package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towlink/towlink/internal/apperr"
)

type point struct {
	Lat float64 `json:"lat" validate:"latitude"`
}

type sample struct {
	RideID string `json:"rideId" validate:"required,uuid4"`
	Reason string `json:"reason" validate:"max=5"`
	Origin point  `json:"origin"`
}

func TestStructReportsFieldsByJSONName(t *testing.T) {
	err := Struct(sample{RideID: "nope", Reason: "far too long", Origin: point{Lat: 123}})
	require.Error(t, err)

	typed := apperr.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, apperr.CodeValidation, typed.Code())

	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a valid id", details["rideId"])
	assert.Equal(t, "must be at most 5", details["reason"])
	assert.Equal(t, "must be a valid latitude", details["origin.lat"])
}

func TestStructAcceptsValidInput(t *testing.T) {
	err := Struct(sample{RideID: "0b9d9a0e-5b8e-4b8a-9b0e-6f1f2f3a4b5c", Reason: "ok"})
	require.NoError(t, err)
}
