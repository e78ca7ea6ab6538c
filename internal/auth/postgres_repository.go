package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, name, bio, skills, interests, postal_code,
		       api_key_prefix, api_key_hash, created_at, revoked_at`

// PostgresRepository implements UserRepository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new UserRepository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) UserRepository {
	return &PostgresRepository{pool: pool}
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Name, &u.Bio, &u.Skills, &u.Interests, &u.PostalCode,
		&u.ApiKeyPrefix, &u.ApiKeyHash, &u.CreatedAt, &u.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user record.
func (r *PostgresRepository) Create(ctx context.Context, u *User) error {
	if u.Skills == nil {
		u.Skills = []string{}
	}
	if u.Interests == nil {
		u.Interests = []string{}
	}

	query := `
		INSERT INTO users (name, bio, skills, interests, postal_code, api_key_prefix, api_key_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		u.Name,
		u.Bio,
		u.Skills,
		u.Interests,
		u.PostalCode,
		u.ApiKeyPrefix,
		u.ApiKeyHash,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// GetByID retrieves a single active user by its UUID.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE id = $1 AND revoked_at IS NULL`

	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}

	return u, nil
}

// FindByPrefix returns active (non-revoked) users matching the given API key prefix.
func (r *PostgresRepository) FindByPrefix(ctx context.Context, prefix string) ([]User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE api_key_prefix = $1 AND revoked_at IS NULL`

	rows, err := r.pool.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("finding users by prefix: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}

	return users, nil
}

// Revoke sets revoked_at on a user. Returns ErrUserNotFound if the user
// does not exist, and ErrUserRevoked if already revoked.
func (r *PostgresRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE users
		SET revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("revoking user: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Distinguish not-found from already-revoked
		var exists bool
		err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking user existence: %w", err)
		}
		if !exists {
			return ErrUserNotFound
		}
		return ErrUserRevoked
	}

	return nil
}
