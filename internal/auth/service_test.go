package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towlink/towlink/internal/apperr"
	"github.com/towlink/towlink/internal/config"
	"github.com/towlink/towlink/internal/identity"
	"github.com/towlink/towlink/internal/logging"
)

func newTestService(t *testing.T) (*Service, identity.User) {
	t.Helper()
	repo := identity.NewMemoryRepository()
	ids := identity.NewService(repo, logging.Discard())
	user, err := ids.Register(context.Background(), identity.Registration{
		Credentials: identity.Credentials{Phone: "600100", PIN: "1234"},
		Name:        "Client",
		Role:        identity.RoleClient,
	})
	require.NoError(t, err)

	cfg := config.Config{
		JWTSecret:       "access",
		RefreshSecret:   "refresh",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}
	return NewService(cfg, repo), user
}

func TestLoginIssuesVerifiableAccessToken(t *testing.T) {
	svc, user := newTestService(t)

	pair, err := svc.Login(user)
	require.NoError(t, err)

	claims, err := svc.VerifyAccess(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, identity.RoleClient, claims.Role)

	_, err = svc.VerifyAccess(context.Background(), pair.RefreshToken)
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized), "refresh token must not authenticate requests")
}

func TestLogoutInvalidatesTokens(t *testing.T) {
	svc, user := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Login(user)
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, user.ID))

	_, err = svc.VerifyAccess(ctx, pair.AccessToken)
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized))
	_, _, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized))
}

func TestRefreshIssuesAccessToken(t *testing.T) {
	svc, user := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Login(user)
	require.NoError(t, err)

	token, exp, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, int64(60), exp)

	claims, err := svc.VerifyAccess(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestExpiredTokenRejected(t *testing.T) {
	svc, user := newTestService(t)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	pair, err := svc.Login(user)
	require.NoError(t, err)

	_, err = svc.VerifyAccess(context.Background(), pair.AccessToken)
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized))
}
