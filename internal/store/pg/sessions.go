package pg

import (
	"context"
	"database/sql"
	"errors"

	"authcore.dev/internal/identity"
)

type sessionStore struct {
	db *sql.DB
}

const sessionColumns = `
	id, user_id, token_hash, expires_at, revoked, revoked_at, replaced_by,
	ip_address, user_agent, created_at
`

func scanSession(row interface{ Scan(...any) error }) (*identity.Session, error) {
	var (
		s          identity.Session
		revokedAt  sql.NullTime
		replacedBy sql.NullString
		ip, agent  sql.NullString
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.Revoked, &revokedAt,
		&replacedBy, &ip, &agent, &s.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.RevokedAt = timePtr(revokedAt)
	s.ReplacedBy = replacedBy.String
	s.IPAddress = ip.String
	s.UserAgent = agent.String
	return &s, nil
}

func (s *sessionStore) Create(ctx context.Context, sess *identity.Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sessions(id, user_id, token_hash, expires_at, revoked,
			ip_address, user_agent, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt, sess.Revoked,
		nullIfEmpty(sess.IPAddress), nullIfEmpty(sess.UserAgent), sess.CreatedAt)
	if isUniqueViolation(err) {
		return identity.ErrConflict
	}
	return err
}

func (s *sessionStore) Find(ctx context.Context, id string) (*identity.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+sessionColumns+` from sessions where id=$1
	`, id)
	return scanSession(row)
}

func (s *sessionStore) Rotate(ctx context.Context, oldID string, replacement *identity.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Compare-and-swap on the revoked flag. Losing the race means another
	// rotation of the same token already happened.
	res, err := tx.ExecContext(ctx, `
		update sessions
		set revoked=true, revoked_at=now(), replaced_by=$2
		where id=$1 and revoked=false and expires_at > now()
	`, oldID, replacement.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return identity.ErrInvalidToken
	}

	if _, err := tx.ExecContext(ctx, `
		insert into sessions(id, user_id, token_hash, expires_at, revoked,
			ip_address, user_agent, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, replacement.ID, replacement.UserID, replacement.TokenHash, replacement.ExpiresAt,
		replacement.Revoked, nullIfEmpty(replacement.IPAddress),
		nullIfEmpty(replacement.UserAgent), replacement.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sessionStore) Revoke(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		update sessions set revoked=true, revoked_at=now()
		where id=$1 and revoked=false
	`, id)
	return err
}

func (s *sessionStore) RevokeAllForUser(ctx context.Context, userID, exceptID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		update sessions set revoked=true, revoked_at=now()
		where user_id=$1 and revoked=false and id <> $2
	`, userID, exceptID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sessionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from sessions where id=$1`, id)
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

func (s *sessionStore) DeleteAllForUser(ctx context.Context, userID string, onlyInactive bool) (int64, error) {
	query := `delete from sessions where user_id=$1`
	if onlyInactive {
		query += ` and (revoked=true or expires_at <= now())`
	}
	res, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sessionStore) ListByUser(ctx context.Context, userID string) ([]identity.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+sessionColumns+` from sessions
		where user_id=$1
		order by created_at desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []identity.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *sess)
	}
	return res, rows.Err()
}
