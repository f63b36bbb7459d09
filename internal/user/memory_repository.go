package user

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

// MemoryRepository keeps users in process memory. It backs the "memory"
// storage driver and the service tests.
type MemoryRepository struct {
	mu      sync.Mutex
	byEmail map[string]*User
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byEmail: make(map[string]*User),
		now:     time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, user *User) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[user.Email]; ok {
		return uuid.Nil, ErrEmailExists
	}

	if user.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return uuid.Nil, fmt.Errorf("repository: failed to generate user id: %w", err)
		}
		user.ID = id
	}
	now := r.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Image = nil

	stored := *user
	r.byEmail[user.Email] = &stored

	return user.ID, nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (r *MemoryRepository) Update(_ context.Context, email string, patch Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byEmail[email]
	if !ok {
		return ErrNotFound
	}
	if patch.FullName != nil {
		u.FullName = *patch.FullName
	}
	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	u.UpdatedAt = r.now().UTC()

	return nil
}

func (r *MemoryRepository) SetImage(_ context.Context, email, image string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byEmail[email]
	if !ok {
		return ErrNotFound
	}
	if u.Image != nil {
		return ErrImageExists
	}
	u.Image = &image
	u.UpdatedAt = r.now().UTC()

	return nil
}

func (r *MemoryRepository) DeleteByEmail(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[email]; !ok {
		return ErrNotFound
	}
	delete(r.byEmail, email)

	return nil
}

func (r *MemoryRepository) List(_ context.Context) ([]Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]*User, 0, len(r.byEmail))
	for _, u := range r.byEmail {
		users = append(users, u)
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Email < users[j].Email
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})

	listings := make([]Listing, 0, len(users))
	for _, u := range users {
		listings = append(listings, Listing{FullName: u.FullName, Email: u.Email, Password: u.PasswordHash})
	}
	return listings, nil
}

func copyUser(u *User) *User {
	c := *u
	if u.Image != nil {
		img := *u.Image
		c.Image = &img
	}
	return &c
}
