package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authcore.dev/internal/identity"
)

type userStore struct {
	db *sql.DB
}

const userColumns = `
	id, tenant_id, email, password_hash, first_name, last_name,
	is_active, email_verified,
	verification_token, verification_expires, reset_token, reset_expires,
	last_login_at, created_at, updated_at, deleted_at
`

func scanUser(row interface{ Scan(...any) error }) (*identity.User, error) {
	var (
		u                  identity.User
		tenantID           sql.NullString
		verToken, resToken sql.NullString
		verExp, resExp     sql.NullTime
		lastLogin, deleted sql.NullTime
	)
	err := row.Scan(
		&u.ID, &tenantID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.IsActive, &u.EmailVerified,
		&verToken, &verExp, &resToken, &resExp,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt, &deleted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.TenantID = ptrFromNull(tenantID)
	u.VerificationToken = verToken.String
	u.VerificationExpires = timePtr(verExp)
	u.ResetToken = resToken.String
	u.ResetExpires = timePtr(resExp)
	u.LastLoginAt = timePtr(lastLogin)
	u.DeletedAt = timePtr(deleted)
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *identity.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, tenant_id, email, password_hash, first_name, last_name,
			is_active, email_verified, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, u.ID, nullStringPtr(u.TenantID), u.Email, u.PasswordHash, u.FirstName, u.LastName,
		u.IsActive, u.EmailVerified, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return identity.ErrConflict
	}
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*identity.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+` from users where id=$1 and deleted_at is null
	`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email, tenantID string) (*identity.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+` from users
		where lower(email)=lower($1) and tenant_id=$2 and deleted_at is null
	`, email, tenantID)
	return scanUser(row)
}

func (s *userStore) FindByEmailAcrossTenants(ctx context.Context, email string) (*identity.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+` from users
		where lower(email)=lower($1) and deleted_at is null
		order by created_at asc
		limit 1
	`, email)
	return scanUser(row)
}

func (s *userStore) FindByVerificationToken(ctx context.Context, token string) (*identity.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+` from users
		where verification_token=$1 and deleted_at is null
	`, token)
	return scanUser(row)
}

func (s *userStore) FindByResetToken(ctx context.Context, token string) (*identity.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+` from users
		where reset_token=$1 and deleted_at is null
	`, token)
	return scanUser(row)
}

func (s *userStore) SetVerificationToken(ctx context.Context, userID, token string, expires time.Time) error {
	return s.update(ctx, `
		update users set verification_token=$2, verification_expires=$3, updated_at=now()
		where id=$1 and deleted_at is null
	`, userID, token, expires)
}

func (s *userStore) MarkEmailVerified(ctx context.Context, userID string) error {
	return s.update(ctx, `
		update users set email_verified=true, verification_token=null,
			verification_expires=null, updated_at=now()
		where id=$1 and deleted_at is null
	`, userID)
}

func (s *userStore) SetResetToken(ctx context.Context, userID, token string, expires time.Time) error {
	return s.update(ctx, `
		update users set reset_token=$2, reset_expires=$3, updated_at=now()
		where id=$1 and deleted_at is null
	`, userID, token, expires)
}

func (s *userStore) ClearResetToken(ctx context.Context, userID string) error {
	return s.update(ctx, `
		update users set reset_token=null, reset_expires=null, updated_at=now()
		where id=$1 and deleted_at is null
	`, userID)
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return s.update(ctx, `
		update users set password_hash=$2, updated_at=now()
		where id=$1 and deleted_at is null
	`, userID, passwordHash)
}

func (s *userStore) SetLastLogin(ctx context.Context, userID string, at time.Time) error {
	return s.update(ctx, `
		update users set last_login_at=$2, updated_at=now()
		where id=$1 and deleted_at is null
	`, userID, at)
}

func (s *userStore) SetActive(ctx context.Context, userID string, active bool) error {
	return s.update(ctx, `
		update users set is_active=$2, updated_at=now()
		where id=$1 and deleted_at is null
	`, userID, active)
}

func (s *userStore) SoftDelete(ctx context.Context, userID string) error {
	return s.update(ctx, `
		update users set deleted_at=now(), is_active=false, updated_at=now()
		where id=$1 and deleted_at is null
	`, userID)
}

func (s *userStore) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return identity.ErrNotFound
	}
	return nil
}
