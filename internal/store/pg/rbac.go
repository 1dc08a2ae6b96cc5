package pg

import (
	"context"
	"database/sql"
	"errors"

	"authcore.dev/internal/identity"
)

type roleStore struct {
	db *sql.DB
}

const roleColumns = `id, tenant_id, name, description, is_system, created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (*identity.Role, error) {
	var (
		r        identity.Role
		tenantID sql.NullString
	)
	err := row.Scan(&r.ID, &tenantID, &r.Name, &r.Description, &r.IsSystem, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.TenantID = ptrFromNull(tenantID)
	return &r, nil
}

func (s *roleStore) Create(ctx context.Context, r *identity.Role) error {
	_, err := s.db.ExecContext(ctx, `
		insert into roles(id, tenant_id, name, description, is_system, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, r.ID, nullStringPtr(r.TenantID), r.Name, r.Description, r.IsSystem, r.CreatedAt, r.UpdatedAt)
	if isUniqueViolation(err) {
		return identity.ErrConflict
	}
	return err
}

func (s *roleStore) Find(ctx context.Context, id string) (*identity.Role, error) {
	row := s.db.QueryRowContext(ctx, `select `+roleColumns+` from roles where id=$1`, id)
	return scanRole(row)
}

func (s *roleStore) ListByTenant(ctx context.Context, tenantID string) ([]identity.Role, error) {
	// Global roles apply in every tenant.
	rows, err := s.db.QueryContext(ctx, `
		select `+roleColumns+` from roles
		where tenant_id=$1 or tenant_id is null
		order by name asc
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id=$1`, id)
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

func (s *roleStore) Assign(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles(user_id, role_id)
		values ($1,$2)
		on conflict (user_id, role_id) do nothing
	`, userID, roleID)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == "23503" {
		return identity.ErrNotFound
	}
	return err
}

func (s *roleStore) Unassign(ctx context.Context, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles where user_id=$1 and role_id=$2
	`, userID, roleID)
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

func (s *roleStore) RolesForUser(ctx context.Context, userID string) ([]identity.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.tenant_id, r.name, r.description, r.is_system, r.created_at, r.updated_at
		from roles r
		join user_roles ur on ur.role_id = r.id
		where ur.user_id=$1
		order by r.name asc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func collectRoles(rows *sql.Rows) ([]identity.Role, error) {
	var res []identity.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *r)
	}
	return res, rows.Err()
}

type permissionStore struct {
	db *sql.DB
}

const permissionColumns = `id, resource, action, tenant_id, condition, created_at`

func scanPermission(row interface{ Scan(...any) error }) (*identity.Permission, error) {
	var (
		p         identity.Permission
		tenantID  sql.NullString
		condition []byte
	)
	err := row.Scan(&p.ID, &p.Resource, &p.Action, &tenantID, &condition, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.TenantID = ptrFromNull(tenantID)
	p.Condition, err = decodeJSONMap(condition)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *permissionStore) Create(ctx context.Context, p *identity.Permission) error {
	condition, err := encodeJSONMap(p.Condition)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into permissions(id, resource, action, tenant_id, condition, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, p.ID, p.Resource, p.Action, nullStringPtr(p.TenantID), condition, p.CreatedAt)
	if isUniqueViolation(err) {
		return identity.ErrConflict
	}
	return err
}

func (s *permissionStore) Ensure(ctx context.Context, perms []identity.Permission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range perms {
		condition, err := encodeJSONMap(p.Condition)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into permissions(id, resource, action, tenant_id, condition, created_at)
			values ($1,$2,$3,$4,$5,$6)
			on conflict (resource, action, coalesce(tenant_id,'')) do nothing
		`, p.ID, p.Resource, p.Action, nullStringPtr(p.TenantID), condition, p.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *permissionStore) List(ctx context.Context) ([]identity.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+permissionColumns+` from permissions
		order by resource asc, action asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func (s *permissionStore) SetForRole(ctx context.Context, roleID string, permissionIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		delete from role_permissions where role_id=$1
	`, roleID); err != nil {
		return err
	}
	for _, permID := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions(role_id, permission_id) values ($1,$2)
		`, roleID, permID); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == "23503" {
				return identity.ErrNotFound
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *permissionStore) PermissionsForRole(ctx context.Context, roleID string) ([]identity.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.resource, p.action, p.tenant_id, p.condition, p.created_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id=$1
		order by p.resource asc, p.action asc
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func collectPermissions(rows *sql.Rows) ([]identity.Permission, error) {
	var res []identity.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *p)
	}
	return res, rows.Err()
}
