package company

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"userapi/pkg/sentinel"
)

// PostgresStore persists companies in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const companyColumns = `
	id, user_id, name, national_code, registry_code, economical_number,
	phone, postal_code, postal_address, size, activity_field,
	ceo_mobile, ceo_mobile_verified, ceo_mobile_verified_at,
	ceo_national_code, ceo_shahkar_verified, ceo_shahkar_verified_at, ceo_shahkar_response,
	verified, verified_at, created_at, updated_at
`

func (s *PostgresStore) Upsert(ctx context.Context, c *Company) error {
	query := `
		INSERT INTO companies (
			user_id, name, national_code, registry_code, economical_number,
			phone, postal_code, postal_address, size, activity_field,
			ceo_mobile, ceo_mobile_verified, ceo_mobile_verified_at,
			ceo_national_code, ceo_shahkar_verified, ceo_shahkar_verified_at, ceo_shahkar_response,
			verified, verified_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16, $17,
			$18, $19
		)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name, national_code = EXCLUDED.national_code,
			registry_code = EXCLUDED.registry_code, economical_number = EXCLUDED.economical_number,
			phone = EXCLUDED.phone, postal_code = EXCLUDED.postal_code,
			postal_address = EXCLUDED.postal_address, size = EXCLUDED.size,
			activity_field = EXCLUDED.activity_field,
			ceo_mobile = EXCLUDED.ceo_mobile,
			ceo_mobile_verified = EXCLUDED.ceo_mobile_verified,
			ceo_mobile_verified_at = EXCLUDED.ceo_mobile_verified_at,
			ceo_national_code = EXCLUDED.ceo_national_code,
			ceo_shahkar_verified = EXCLUDED.ceo_shahkar_verified,
			ceo_shahkar_verified_at = EXCLUDED.ceo_shahkar_verified_at,
			ceo_shahkar_response = EXCLUDED.ceo_shahkar_response,
			updated_at = NOW()
		RETURNING id, verified, verified_at, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		c.UserID, c.Name, c.NationalCode, c.RegistryCode, c.EconomicalNumber,
		c.Phone, c.PostalCode, c.PostalAddress, c.Size, c.ActivityField,
		c.CEOMobile, c.CEOMobileVerified, c.CEOMobileVerifiedAt,
		c.CEONationalCode, c.CEOShahkarVerified, c.CEOShahkarVerifiedAt, c.CEOShahkarResponse,
		c.Verified, c.VerifiedAt,
	).Scan(&c.ID, &c.Verified, &c.VerifiedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert company: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, c *Company) error {
	query := `
		UPDATE companies SET
			name = $2, national_code = $3, registry_code = $4, economical_number = $5,
			phone = $6, postal_code = $7, postal_address = $8, size = $9, activity_field = $10,
			ceo_mobile = $11, ceo_mobile_verified = $12, ceo_mobile_verified_at = $13,
			ceo_national_code = $14, ceo_shahkar_verified = $15, ceo_shahkar_verified_at = $16,
			ceo_shahkar_response = $17,
			updated_at = NOW()
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, c.NationalCode, c.RegistryCode, c.EconomicalNumber,
		c.Phone, c.PostalCode, c.PostalAddress, c.Size, c.ActivityField,
		c.CEOMobile, c.CEOMobileVerified, c.CEOMobileVerifiedAt,
		c.CEONationalCode, c.CEOShahkarVerified, c.CEOShahkarVerifiedAt, c.CEOShahkarResponse,
	)
	if err != nil {
		return fmt.Errorf("update company: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update company rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`
	return s.getOne(ctx, query, id)
}

func (s *PostgresStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE user_id = $1`
	return s.getOne(ctx, query, userID)
}

func (s *PostgresStore) getOne(ctx context.Context, query string, arg any) (*Company, error) {
	c, err := scanCompany(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get company: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies ORDER BY id`
	var args []any
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query companies: %w", err)
	}
	defer rows.Close()

	var companies []*Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companies: %w", err)
	}
	return companies, nil
}

func (s *PostgresStore) MarkVerified(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `
		UPDATE companies
		SET verified = TRUE, verified_at = $2, updated_at = NOW()
		WHERE id = $1 AND verified = FALSE
	`
	result, err := s.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("mark company verified: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark company verified rows affected: %w", err)
	}
	return rows > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompany(row rowScanner) (*Company, error) {
	var c Company
	err := row.Scan(
		&c.ID, &c.UserID, &c.Name, &c.NationalCode, &c.RegistryCode, &c.EconomicalNumber,
		&c.Phone, &c.PostalCode, &c.PostalAddress, &c.Size, &c.ActivityField,
		&c.CEOMobile, &c.CEOMobileVerified, &c.CEOMobileVerifiedAt,
		&c.CEONationalCode, &c.CEOShahkarVerified, &c.CEOShahkarVerifiedAt, &c.CEOShahkarResponse,
		&c.Verified, &c.VerifiedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
