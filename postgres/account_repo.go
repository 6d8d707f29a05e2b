package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/authkit-go/authkit/accounts"
)

// AccountRepo implements accounts.Repo on PostgreSQL.
type AccountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

const accountColumns = `id, user_id, provider, provider_account_id, password_hash, access_token, refresh_token, expires_in, created_at`

func (r *AccountRepo) GetByCompositeKey(ctx context.Context, userID, providerID string) (*accounts.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE user_id = $1 AND provider = $2
	`, userID, providerID)

	var a accounts.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Provider, &a.ProviderAccountID, &a.PasswordHash, &a.AccessToken, &a.RefreshToken, &a.ExpiresIn, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[AccountRepo.GetByCompositeKey]")
	}
	return &a, nil
}

func (r *AccountRepo) Create(ctx context.Context, fields accounts.NewAccount) (*accounts.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO accounts (user_id, provider, provider_account_id, password_hash, access_token, refresh_token, expires_in)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+accountColumns+`
	`, fields.UserID, fields.Provider, fields.ProviderAccountID, fields.PasswordHash, fields.AccessToken, fields.RefreshToken, fields.ExpiresIn)

	var a accounts.Account
	if err := row.Scan(&a.ID, &a.UserID, &a.Provider, &a.ProviderAccountID, &a.PasswordHash, &a.AccessToken, &a.RefreshToken, &a.ExpiresIn, &a.CreatedAt); err != nil {
		return nil, errors.Wrap(err, "[AccountRepo.Create]")
	}
	return &a, nil
}

func (r *AccountRepo) UpdatePassword(ctx context.Context, userID, hash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET password_hash = $1
		WHERE user_id = $2 AND password_hash <> ''
	`, hash, userID)
	if err != nil {
		return false, errors.Wrap(err, "[AccountRepo.UpdatePassword]")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "[AccountRepo.UpdatePassword] rows affected")
	}
	return n > 0, nil
}

func (r *AccountRepo) UpdateTokens(ctx context.Context, access, refresh string, expiresIn int64, userID, providerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET access_token = $1, refresh_token = $2, expires_in = $3
		WHERE user_id = $4 AND provider = $5
	`, access, refresh, expiresIn, userID, providerID)
	if err != nil {
		return false, errors.Wrap(err, "[AccountRepo.UpdateTokens]")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "[AccountRepo.UpdateTokens] rows affected")
	}
	return n > 0, nil
}
