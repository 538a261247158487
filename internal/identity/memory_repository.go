package identity

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	users   map[string]User   // by id
	byPhone map[string]string // phone -> id
}

// NewMemoryRepository builds an in-memory user store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]User), byPhone: make(map[string]string)}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byPhone[user.Phone]; exists {
		return ErrUserExists
	}
	r.users[user.ID] = user
	r.byPhone[user.Phone] = user.ID
	return nil
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPhone[phone]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return r.users[id], nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindMany(_ context.Context, ids []string) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []User
	for _, id := range ids {
		if user, ok := r.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func (r *memoryRepository) UpdateLocation(_ context.Context, id string, lat, lng float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.Lat, user.Lng = &lat, &lng
	r.users[id] = user
	return nil
}

func (r *memoryRepository) UpdateTokenVersion(_ context.Context, id string, version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.TokenVersion = version
	r.users[id] = user
	return nil
}
