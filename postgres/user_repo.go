package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/authkit-go/authkit/users"
)

// UserRepo implements users.Repo on PostgreSQL.
type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, email, username, name, image, email_verified, roles, created_at`

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email)
	return scanUser(row)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *UserRepo) Create(ctx context.Context, fields users.NewUser) (*users.User, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (email, username, name, image, email_verified, roles)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns+`
	`, fields.Email, fields.Username, fields.Name, fields.Image, fields.EmailVerified, pq.Array(fields.Roles))

	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errors.New("[UserRepo.Create] insert returned no row")
	}
	return u, nil
}

func (r *UserRepo) UpdateRoles(ctx context.Context, roles []string, userID string) (*users.User, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET roles = $1
		WHERE id = $2
		RETURNING `+userColumns+`
	`, pq.Array(roles), userID)

	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errors.Errorf("[UserRepo.UpdateRoles] user %s not found", userID)
	}
	return u, nil
}

func (r *UserRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "[UserRepo.Delete]")
	}
	return nil
}

func scanUser(row *sql.Row) (*users.User, error) {
	var u users.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.Name, &u.Image, &u.EmailVerified, pq.Array(&u.Roles), &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan user")
	}
	return &u, nil
}
