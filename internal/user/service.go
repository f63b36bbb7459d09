package user

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor for stored passwords.
const PasswordCost = 10

// maxPasswordBytes is the most bcrypt reads; longer passwords are cut to it.
const maxPasswordBytes = 72

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

type Service interface {
	CreateUser(ctx context.Context, in NewUser) (*User, error)
	EditUser(ctx context.Context, email string, changes Changes) error
	DeleteUser(ctx context.Context, email string) error
	ListUsers(ctx context.Context) ([]Listing, error)
	// AttachImage stores the upload and returns the path recorded on the user.
	AttachImage(ctx context.Context, email string, upload Upload) (string, error)
}

// ImageStore persists uploaded files under a unique name.
type ImageStore interface {
	Save(ctx context.Context, filename, contentType string, body io.Reader) (string, error)
	Remove(ctx context.Context, path string) error
}

type service struct {
	repo     Repository
	images   ImageStore
	validate *validator.Validate
}

func NewService(repo Repository, images ImageStore) Service {
	return &service{
		repo:     repo,
		images:   images,
		validate: NewValidator(),
	}
}

func (s *service) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	if err := validateNewUser(s.validate, in); err != nil {
		return nil, err
	}

	_, err := s.repo.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, ErrEmailExists
	case !errors.Is(err, ErrNotFound):
		log.Error().Err(err).Msg("service: failed to look up email before create")
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		FullName:     in.FullName,
		Email:        in.Email,
		PasswordHash: hash,
	}

	createdID, err := s.repo.Create(ctx, u)
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, ErrEmailExists
		}
		log.Error().Err(err).Msg("service: failed to create user in repository")
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	u.ID = createdID

	return u, nil
}

func (s *service) EditUser(ctx context.Context, email string, changes Changes) error {
	if email == "" {
		return newValidationError(msgEmailRequired)
	}

	if _, err := s.repo.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		log.Error().Err(err).Msg("service: failed to get user for edit")
		return fmt.Errorf("failed to get user by email: %w", err)
	}

	changes = normalizeChanges(changes)
	if err := validateChanges(s.validate, changes); err != nil {
		return err
	}

	var patch Patch
	patch.FullName = changes.FullName
	if changes.Password != nil {
		hash, err := hashPassword(*changes.Password)
		if err != nil {
			return err
		}
		patch.PasswordHash = &hash
	}

	if patch.FullName == nil && patch.PasswordHash == nil {
		return nil
	}

	if err := s.repo.Update(ctx, email, patch); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		log.Error().Err(err).Msg("service: failed to update user")
		return fmt.Errorf("failed to update user: %w", err)
	}

	return nil
}

func (s *service) DeleteUser(ctx context.Context, email string) error {
	if email == "" {
		return newValidationError(msgEmailRequired)
	}

	if err := s.repo.DeleteByEmail(ctx, email); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		log.Error().Err(err).Msg("service: failed to delete user")
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return nil
}

func (s *service) ListUsers(ctx context.Context) ([]Listing, error) {
	listings, err := s.repo.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list users")
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return listings, nil
}

func (s *service) AttachImage(ctx context.Context, email string, upload Upload) (string, error) {
	if upload.Body != nil && !allowedImageTypes[upload.ContentType] {
		return "", ErrUnsupportedImage
	}
	if email == "" {
		return "", newValidationError(msgEmailRequired)
	}
	if upload.Body == nil {
		return "", newValidationError(msgImageRequired)
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		log.Error().Err(err).Msg("service: failed to get user for image upload")
		return "", fmt.Errorf("failed to get user by email: %w", err)
	}
	if u.HasImage() {
		return "", ErrImageExists
	}

	path, err := s.images.Save(ctx, upload.Filename, upload.ContentType, upload.Body)
	if err != nil {
		log.Error().Err(err).Str("filename", upload.Filename).Msg("service: failed to store image")
		return "", fmt.Errorf("failed to store image: %w", err)
	}

	if err := s.repo.SetImage(ctx, email, path); err != nil {
		// The record was not touched, so the file we just wrote has no owner.
		if rmErr := s.images.Remove(ctx, path); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", path).Msg("service: failed to remove orphaned image")
		}
		if errors.Is(err, ErrImageExists) || errors.Is(err, ErrNotFound) {
			return "", err
		}
		log.Error().Err(err).Msg("service: failed to record image on user")
		return "", fmt.Errorf("failed to set user image: %w", err)
	}

	return path, nil
}

func hashPassword(password string) (string, error) {
	// The password alphabet is ASCII, so the cut never splits a character.
	if len(password) > maxPasswordBytes {
		password = password[:maxPasswordBytes]
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to generate password hash")
		return "", fmt.Errorf("internal error hashing password: %w", err)
	}
	return string(hash), nil
}

// normalizeChanges treats empty strings as omitted fields.
func normalizeChanges(c Changes) Changes {
	if c.FullName != nil && *c.FullName == "" {
		c.FullName = nil
	}
	if c.Password != nil && *c.Password == "" {
		c.Password = nil
	}
	return c
}
