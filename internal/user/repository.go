package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository is the storage port of the account directory.
type Repository interface {
	// Create inserts the user if no record with the same email exists.
	// Returns ErrEmailExists otherwise.
	Create(ctx context.Context, user *User) (uuid.UUID, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// Update writes only the non-nil fields of the patch.
	Update(ctx context.Context, email string, patch Patch) error
	// SetImage sets the image only while it is still NULL.
	// Returns ErrImageExists if another value got there first.
	SetImage(ctx context.Context, email, image string) error
	DeleteByEmail(ctx context.Context, email string) error
	List(ctx context.Context) ([]Listing, error)
}

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresRepository struct {
	db DB
}

func NewRepository(db DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, user *User) (uuid.UUID, error) {
	id := user.ID
	if id == uuid.Nil {
		genID, err := uuid.NewV4()
		if err != nil {
			return uuid.Nil, fmt.Errorf("repository: failed to generate user id: %w", err)
		}
		id = genID
	}

	query := `
		INSERT INTO users (id, full_name, email, password_hash, image)
		VALUES ($1, $2, $3, $4, NULL)
		ON CONFLICT (email) DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query, id, user.FullName, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return uuid.Nil, ErrEmailExists
		}
		return uuid.Nil, fmt.Errorf("repository: failed to insert user: %w", err)
	}

	user.Image = nil
	return user.ID, nil
}

func (r *postgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, full_name, email, password_hash, image, created_at, updated_at
		FROM users
		WHERE email = $1
	`

	var u User
	err := r.db.QueryRow(ctx, query, email).Scan(
		&u.ID,
		&u.FullName,
		&u.Email,
		&u.PasswordHash,
		&u.Image,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select user by email: %w", err)
	}

	return &u, nil
}

func (r *postgresRepository) Update(ctx context.Context, email string, patch Patch) error {
	query := `
		UPDATE users
		SET full_name = COALESCE($2, full_name),
			password_hash = COALESCE($3, password_hash),
			updated_at = now()
		WHERE email = $1
	`

	cmdTag, err := r.db.Exec(ctx, query, email, patch.FullName, patch.PasswordHash)
	if err != nil {
		return fmt.Errorf("repository: failed to update user: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *postgresRepository) SetImage(ctx context.Context, email, image string) error {
	query := `
		UPDATE users
		SET image = $2, updated_at = now()
		WHERE email = $1 AND image IS NULL
	`

	cmdTag, err := r.db.Exec(ctx, query, email, image)
	if err != nil {
		return fmt.Errorf("repository: failed to set user image: %w", err)
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	// Nothing matched: either the user is gone or the image is already set.
	if _, err := r.GetByEmail(ctx, email); err != nil {
		return err
	}
	return ErrImageExists
}

func (r *postgresRepository) DeleteByEmail(ctx context.Context, email string) error {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `DELETE FROM users WHERE email = $1 RETURNING id`, email).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("repository: failed to delete user: %w", err)
	}

	return nil
}

func (r *postgresRepository) List(ctx context.Context) ([]Listing, error) {
	rows, err := r.db.Query(ctx, `SELECT full_name, email, password_hash FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query users: %w", err)
	}
	defer rows.Close()

	listings := make([]Listing, 0)
	for rows.Next() {
		var l Listing
		if err := rows.Scan(&l.FullName, &l.Email, &l.Password); err != nil {
			return nil, fmt.Errorf("repository: failed to scan user: %w", err)
		}
		listings = append(listings, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating users: %w", err)
	}

	return listings, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
