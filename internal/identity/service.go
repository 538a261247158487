package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/towlink/towlink/internal/apperr"
)

const minPINLength = 4

// Service manages identity lifecycle.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a new identity service.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "identity").Logger()}
}

// Register creates a client or trucker account and stores a hashed PIN.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	if reg.Role != RoleClient && reg.Role != RoleTrucker {
		return User{}, apperr.Validation("validation failed", map[string]string{"role": "must be one of [client trucker]"})
	}
	return s.create(ctx, reg)
}

// Provision creates an account with any role, including admin. It is used by
// startup seeding, never by a public endpoint. An existing phone is left as is.
func (s *Service) Provision(ctx context.Context, reg Registration) (User, error) {
	if existing, err := s.repo.FindByPhone(ctx, reg.Phone); err == nil {
		return existing, nil
	}
	return s.create(ctx, reg)
}

func (s *Service) create(ctx context.Context, reg Registration) (User, error) {
	if len(reg.PIN) < minPINLength {
		return User{}, apperr.Validation("validation failed", map[string]string{"pin": "must be at least 4 digits"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.PIN), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:        uuid.NewString(),
		Phone:     strings.TrimSpace(reg.Phone),
		Name:      strings.TrimSpace(reg.Name),
		PhotoURL:  reg.PhotoURL,
		Role:      reg.Role,
		PINHash:   hash,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			return User{}, apperr.Wrap(apperr.CodeValidation, err, "phone already registered").
				WithDetails(map[string]string{"phone": "already registered"})
		}
		return User{}, err
	}
	s.logger.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("identity.registered")
	return user, nil
}

// Authenticate verifies the phone and PIN pair.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByPhone(ctx, strings.TrimSpace(creds.Phone))
	if errors.Is(err, ErrUserNotFound) {
		return User{}, apperr.New(apperr.CodeUnauthorized, "invalid credentials")
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(creds.PIN)); err != nil {
		return User{}, apperr.New(apperr.CodeUnauthorized, "invalid credentials")
	}
	return user, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, apperr.Wrap(apperr.CodeNotFound, err, "user not found").WithReason(apperr.ReasonMissing)
	}
	return user, err
}

// Profiles returns the public profiles of the listed users keyed by id.
func (s *Service) Profiles(ctx context.Context, ids []string) (map[string]Profile, error) {
	users, err := s.repo.FindMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Profile, len(users))
	for _, u := range users {
		out[u.ID] = u.Profile()
	}
	return out, nil
}

// UpdateLocation stores the caller's current position.
func (s *Service) UpdateLocation(ctx context.Context, id string, lat, lng float64) error {
	err := s.repo.UpdateLocation(ctx, id, lat, lng)
	if errors.Is(err, ErrUserNotFound) {
		return apperr.Wrap(apperr.CodeNotFound, err, "user not found").WithReason(apperr.ReasonMissing)
	}
	return err
}
