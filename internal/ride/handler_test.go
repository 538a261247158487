package ride

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towlink/towlink/internal/auth"
	"github.com/towlink/towlink/internal/identity"
	"github.com/towlink/towlink/internal/logging"
	"github.com/towlink/towlink/internal/middleware"
	"github.com/towlink/towlink/internal/responses"
)

// fakeTokens accepts "role:userID" as a bearer token.
type fakeTokens struct{}

func (fakeTokens) VerifyAccess(_ context.Context, token string) (auth.Claims, error) {
	role, id, ok := strings.Cut(token, ":")
	if !ok {
		return auth.Claims{}, errors.New("bad token")
	}
	return auth.Claims{UserID: id, Role: role}, nil
}

func newTestApp(f *fixture) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return responses.Error(c, logging.Discard(), true, err)
		},
	})
	h := NewHandler(f.svc)
	g := app.Group("/ride-request", middleware.JWTAuth(fakeTokens{}))
	client := middleware.RequireRole(identity.RoleClient)
	trucker := middleware.RequireRole(identity.RoleTrucker)
	g.Post("/create", client, h.Create)
	g.Patch("/post", client, h.Post)
	g.Patch("/add-offer", trucker, h.AddOffer)
	g.Patch("/accept", client, h.Accept)
	g.Get("/open", trucker, h.Open)
	g.Get("/:id/offers", client, h.Offers)
	return app
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

func call(t *testing.T, app *fiber.App, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestHandlerRideLifecycle(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)
	requester := uuid.NewString()
	truckerID := f.trucker("20.00")
	clientToken := identity.RoleClient + ":" + requester
	truckerToken := identity.RoleTrucker + ":" + truckerID

	status, env := call(t, app, http.MethodPost, "/ride-request/create", clientToken, map[string]any{
		"origin":      map[string]any{"lat": 40.4168, "lng": -3.7038, "address": "Gran Via 1"},
		"destination": map[string]any{"lat": 40.4530, "lng": -3.6883, "address": "Bernabeu"},
		"pickupDate":  "2026-11-01T10:00:00Z",
		"vehicle":     map[string]any{"category": "sedan", "loadState": "empty", "wheelState": "ok"},
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var created rideResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "created", created.Status)
	assert.Nil(t, created.AcceptedOfferID)

	status, _ = call(t, app, http.MethodPatch, "/ride-request/post", clientToken, map[string]string{"rideId": created.ID})
	require.Equal(t, http.StatusOK, status)

	status, env = call(t, app, http.MethodPatch, "/ride-request/add-offer", truckerToken, map[string]any{"rideId": created.ID, "price": "100", "eta": "20m"})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var offer offerResponse
	require.NoError(t, json.Unmarshal(env.Data, &offer))
	assert.Equal(t, "100.00", offer.OfferedPrice)

	status, _ = call(t, app, http.MethodPatch, "/ride-request/add-offer", truckerToken, map[string]any{"rideId": created.ID, "price": 110, "eta": "15m"})
	require.Equal(t, http.StatusOK, status)

	status, env = call(t, app, http.MethodGet, "/ride-request/"+created.ID+"/offers", clientToken, nil)
	require.Equal(t, http.StatusOK, status)
	var offers []offerResponse
	require.NoError(t, json.Unmarshal(env.Data, &offers))
	require.Len(t, offers, 1)
	require.NotNil(t, offers[0].Trucker)
	assert.Equal(t, truckerID, offers[0].Trucker.ID)

	status, env = call(t, app, http.MethodPatch, "/ride-request/accept", identity.RoleClient+":"+uuid.NewString(), map[string]string{"rideId": created.ID, "offerId": offer.ID})
	require.Equal(t, http.StatusNotFound, status)
	assert.False(t, env.Success)
	assert.Equal(t, "NOT_FOUND", env.Code)

	status, env = call(t, app, http.MethodPatch, "/ride-request/accept", clientToken, map[string]string{"rideId": created.ID, "offerId": offer.ID})
	require.Equal(t, http.StatusOK, status, env.Message)
	var accepted rideResponse
	require.NoError(t, json.Unmarshal(env.Data, &accepted))
	assert.Equal(t, "accepted", accepted.Status)
	require.NotNil(t, accepted.AcceptedOfferID)
	assert.Equal(t, offer.ID, *accepted.AcceptedOfferID)
	assert.Equal(t, "11.00", accepted.Commission)
	assert.Equal(t, "9.00", f.balance(t, truckerID))
}

func TestHandlerRejectsBadInputAndRoles(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)
	clientToken := identity.RoleClient + ":" + uuid.NewString()

	status, env := call(t, app, http.MethodPost, "/ride-request/create", clientToken, map[string]any{
		"origin": map[string]any{"lat": 123.0, "lng": 0, "address": "x"},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)

	status, _ = call(t, app, http.MethodPatch, "/ride-request/post", clientToken, map[string]string{"rideId": "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = call(t, app, http.MethodPatch, "/ride-request/add-offer", clientToken, map[string]any{"rideId": uuid.NewString(), "price": 10, "eta": "5m"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Code)

	status, env = call(t, app, http.MethodGet, "/ride-request/open?lat=1", identity.RoleTrucker+":"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusBadRequest, status, env.Message)
}
