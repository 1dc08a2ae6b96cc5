package pg

import (
	"context"
	"database/sql"

	"authcore.dev/internal/identity"
)

type membershipStore struct {
	db *sql.DB
}

const membershipColumns = `id, user_id, tenant_id, is_primary, is_active, created_at`

func scanMembership(row interface{ Scan(...any) error }) (*identity.Membership, error) {
	var m identity.Membership
	if err := row.Scan(&m.ID, &m.UserID, &m.TenantID, &m.IsPrimary, &m.IsActive, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *membershipStore) Create(ctx context.Context, m *identity.Membership) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if m.IsPrimary {
		if _, err := tx.ExecContext(ctx, `
			update tenant_memberships set is_primary=false where user_id=$1
		`, m.UserID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		insert into tenant_memberships(id, user_id, tenant_id, is_primary, is_active, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, m.ID, m.UserID, m.TenantID, m.IsPrimary, m.IsActive, m.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return identity.ErrConflict
		}
		return err
	}
	return tx.Commit()
}

func (s *membershipStore) Delete(ctx context.Context, userID, tenantID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from tenant_memberships where user_id=$1 and tenant_id=$2
	`, userID, tenantID)
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

func (s *membershipStore) ListByUser(ctx context.Context, userID string) ([]identity.Membership, error) {
	return s.list(ctx, `
		select `+membershipColumns+` from tenant_memberships
		where user_id=$1 and is_active=true
		order by is_primary desc, created_at asc
	`, userID)
}

func (s *membershipStore) ListByEmail(ctx context.Context, email string) ([]identity.Membership, error) {
	return s.list(ctx, `
		select m.id, m.user_id, m.tenant_id, m.is_primary, m.is_active, m.created_at
		from tenant_memberships m
		join users u on u.id = m.user_id
		where lower(u.email)=lower($1) and u.deleted_at is null and m.is_active=true
		order by m.is_primary desc, m.created_at asc
	`, email)
}

func (s *membershipStore) ListByTenant(ctx context.Context, tenantID string) ([]identity.Membership, error) {
	return s.list(ctx, `
		select `+membershipColumns+` from tenant_memberships
		where tenant_id=$1
		order by created_at asc
	`, tenantID)
}

func (s *membershipStore) SetPrimary(ctx context.Context, userID, tenantID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		update tenant_memberships set is_primary=false where user_id=$1
	`, userID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		update tenant_memberships set is_primary=true
		where user_id=$1 and tenant_id=$2 and is_active=true
	`, userID, tenantID)
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
	return tx.Commit()
}

func (s *membershipStore) list(ctx context.Context, query string, args ...any) ([]identity.Membership, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []identity.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *m)
	}
	return res, rows.Err()
}
