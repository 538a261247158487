package auth

import (
	"context"
	"errors"
	"time"

	"github.com/towlink/towlink/internal/apperr"
	"github.com/towlink/towlink/internal/config"
	"github.com/towlink/towlink/internal/identity"
)

type Service struct {
	cfg    config.Config
	idRepo identity.Repository
	now    func() time.Time
}

func NewService(cfg config.Config, idRepo identity.Repository) *Service {
	return &Service{cfg: cfg, idRepo: idRepo, now: time.Now}
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Login issues an access and refresh token for an authenticated user.
func (s *Service) Login(user identity.User) (TokenPair, error) {
	claims := Claims{UserID: user.ID, Role: user.Role, Version: user.TokenVersion}
	now := s.now()
	access, _, err := sign(claims, kindAccess, s.cfg.JWTSecret, now, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := sign(claims, kindRefresh, s.cfg.RefreshSecret, now, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

// Refresh verifies the refresh token and returns a new access token if valid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := parse(refreshToken, kindRefresh, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, apperr.Wrap(apperr.CodeUnauthorized, err, "invalid refresh token")
	}
	user, err := s.current(ctx, claims)
	if err != nil {
		return "", 0, err
	}

	signed, _, err := sign(Claims{UserID: user.ID, Role: user.Role, Version: user.TokenVersion}, kindAccess, s.cfg.JWTSecret, s.now(), s.cfg.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// VerifyAccess validates an access token and rejects tokens issued before the
// user's last logout.
func (s *Service) VerifyAccess(ctx context.Context, token string) (Claims, error) {
	claims, err := parse(token, kindAccess, s.cfg.JWTSecret)
	if err != nil {
		return Claims{}, apperr.Wrap(apperr.CodeUnauthorized, err, "invalid token")
	}
	user, err := s.current(ctx, claims)
	if err != nil {
		return Claims{}, err
	}
	claims.Role = user.Role
	return claims, nil
}

// Logout increments token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID string) error {
	user, err := s.idRepo.FindByID(ctx, userID)
	if err != nil {
		return apperr.Wrap(apperr.CodeUnauthorized, err, "user not found")
	}
	return s.idRepo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}

func (s *Service) current(ctx context.Context, claims Claims) (identity.User, error) {
	user, err := s.idRepo.FindByID(ctx, claims.UserID)
	if errors.Is(err, identity.ErrUserNotFound) {
		return identity.User{}, apperr.Wrap(apperr.CodeUnauthorized, err, "user not found")
	}
	if err != nil {
		return identity.User{}, err
	}
	if user.TokenVersion != claims.Version {
		return identity.User{}, apperr.New(apperr.CodeUnauthorized, "token invalidated")
	}
	return user, nil
}
