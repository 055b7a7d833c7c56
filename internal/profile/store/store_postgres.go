package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"signbridge/internal/profile"
	"signbridge/internal/profile/models"
	"signbridge/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

const profileColumns = `id, email, name, role, roll_number, email_confirmed,
	confirmation_sent_at, email_confirmed_at, attributes, created_at, updated_at`

// PostgresStore persists profiles in PostgreSQL.
// This store is pure I/O; confirmation rules live in the models and services.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	return s.findOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
}

func (s *PostgresStore) FindByRollNumber(ctx context.Context, rollNumber string) (*models.Profile, error) {
	return s.findOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE roll_number = $1`, rollNumber)
}

// findOne collapses the row set through the profile normalizer so callers only
// ever see one record or sentinel.ErrNotFound.
func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Profile, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	defer rows.Close()

	var records []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profile.Single(records)
}

func (s *PostgresStore) ExistsRollNumber(ctx context.Context, rollNumber string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE roll_number = $1)`, rollNumber).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check roll number: %w", err)
	}
	return exists, nil
}

// Upsert inserts or overwrites the profile keyed by id. Confirmation is merged
// monotonically so a late backfill never unconfirms a confirmed account.
func (s *PostgresStore) Upsert(ctx context.Context, p *models.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	attrs, err := marshalAttributes(p.Attributes)
	if err != nil {
		return err
	}
	now := s.now()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	query := `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			roll_number = EXCLUDED.roll_number,
			email_confirmed = profiles.email_confirmed OR EXCLUDED.email_confirmed,
			confirmation_sent_at = EXCLUDED.confirmation_sent_at,
			email_confirmed_at = COALESCE(profiles.email_confirmed_at, EXCLUDED.email_confirmed_at),
			attributes = EXCLUDED.attributes,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		p.ID,
		p.Email,
		p.Name,
		string(p.Role),
		p.RollNumber,
		p.EmailConfirmed,
		nullTime(p.ConfirmationSentAt),
		nullTime(p.EmailConfirmedAt),
		attrs,
		createdAt,
		now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("upsert profile %s: roll number %s taken: %w", p.ID, p.RollNumber, sentinel.ErrConflict)
		}
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// Update applies u under a row lock so concurrent confirmations serialize.
func (s *PostgresStore) Update(ctx context.Context, id string, u models.Update) (*models.Profile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update profile: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	p, err := scanProfile(tx.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock profile: %w", err)
	}
	if err := p.Apply(u, s.now()); err != nil {
		return nil, err
	}
	attrs, err := marshalAttributes(p.Attributes)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE profiles
		SET name = $2, email_confirmed = $3, email_confirmed_at = $4, attributes = $5, updated_at = $6
		WHERE id = $1
	`, p.ID, p.Name, p.EmailConfirmed, nullTime(p.EmailConfirmedAt), attrs, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete profile rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// DeleteUnconfirmed deletes the listed profiles that are still unconfirmed and
// returns the ids actually removed. A profile confirmed after it was selected
// for reaping survives.
func (s *PostgresStore) DeleteUnconfirmed(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM profiles WHERE id = ANY($1) AND email_confirmed = FALSE RETURNING id`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("delete unconfirmed profiles: %w", err)
	}
	defer rows.Close()

	deleted := make([]string, 0, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted id: %w", err)
		}
		deleted = append(deleted, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deleted ids: %w", err)
	}
	return deleted, nil
}

func (s *PostgresStore) ListExpiredUnconfirmed(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM profiles
		WHERE email_confirmed = FALSE AND confirmation_sent_at < $1
		ORDER BY confirmation_sent_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired profiles: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired ids: %w", err)
	}
	return ids, nil
}

type profileRow interface {
	Scan(dest ...any) error
}

func scanProfile(row profileRow) (*models.Profile, error) {
	var (
		p           models.Profile
		role        string
		sentAt      sql.NullTime
		confirmedAt sql.NullTime
		attrs       []byte
	)
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &role, &p.RollNumber, &p.EmailConfirmed,
		&sentAt, &confirmedAt, &attrs, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Role = models.Role(role)
	if sentAt.Valid {
		p.ConfirmationSentAt = &sentAt.Time
	}
	if confirmedAt.Valid {
		p.EmailConfirmedAt = &confirmedAt.Time
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &p.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
	}
	return &p, nil
}

func marshalAttributes(attrs map[string]string) ([]byte, error) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	return b, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
