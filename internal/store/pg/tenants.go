package pg

import (
	"context"
	"database/sql"
	"errors"

	"authcore.dev/internal/identity"
)

type tenantStore struct {
	db *sql.DB
}

func scanTenant(row interface{ Scan(...any) error }) (*identity.Tenant, error) {
	var (
		t        identity.Tenant
		settings []byte
	)
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.IsActive, &settings, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Settings, err = decodeJSONMap(settings)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *tenantStore) Create(ctx context.Context, t *identity.Tenant) error {
	settings, err := encodeJSONMap(t.Settings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into tenants(id, name, slug, is_active, settings, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, t.ID, t.Name, t.Slug, t.IsActive, settings, t.CreatedAt, t.UpdatedAt)
	if isUniqueViolation(err) {
		return identity.ErrConflict
	}
	return err
}

func (s *tenantStore) Find(ctx context.Context, id string) (*identity.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, slug, is_active, settings, created_at, updated_at
		from tenants where id=$1
	`, id)
	return scanTenant(row)
}

func (s *tenantStore) FindBySlug(ctx context.Context, slug string) (*identity.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, slug, is_active, settings, created_at, updated_at
		from tenants where slug=$1
	`, slug)
	return scanTenant(row)
}

func (s *tenantStore) List(ctx context.Context) ([]identity.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, slug, is_active, settings, created_at, updated_at
		from tenants order by name asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []identity.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}
	return res, rows.Err()
}

func (s *tenantStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update tenants set is_active=$2, updated_at=now() where id=$1
	`, id, active)
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
