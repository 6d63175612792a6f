package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"userapi/pkg/sentinel"
)

// PostgresStore persists users in PostgreSQL. It is pure I/O; business rules
// live in the service layer.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `
	id, email, password_hash, first_name, last_name, COALESCE(username, ''),
	email_verified, email_verified_at, mobile, mobile_verified, mobile_verified_at,
	national_code, shahkar_verified, shahkar_verified_at, shahkar_response,
	postal_code, postal_address, avatar_path, avatar_updated_at,
	identity_verified, identity_verified_at, identity_verified_by,
	roles, access_list, is_active, is_staff, is_superuser, created_at, updated_at
`

func (s *PostgresStore) Create(ctx context.Context, user *User) error {
	roles, accessList, err := marshalLists(user)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO users (
			id, email, password_hash, first_name, last_name, username,
			email_verified, email_verified_at, mobile, mobile_verified, mobile_verified_at,
			national_code, shahkar_verified, shahkar_verified_at, shahkar_response,
			postal_code, postal_address, avatar_path, avatar_updated_at,
			identity_verified, identity_verified_at, identity_verified_by,
			roles, access_list, is_active, is_staff, is_superuser
		) VALUES (
			$1, $2, $3, $4, $5, NULLIF($6, ''),
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19,
			$20, $21, $22,
			$23, $24, $25, $26, $27
		)
		RETURNING created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Username,
		user.EmailVerified, user.EmailVerifiedAt, user.Mobile, user.MobileVerified, user.MobileVerifiedAt,
		user.NationalCode, user.ShahkarVerified, user.ShahkarVerifiedAt, user.ShahkarResponse,
		user.PostalCode, user.PostalAddress, user.AvatarPath, user.AvatarUpdatedAt,
		user.IdentityVerified, user.IdentityVerifiedAt, user.IdentityVerifiedBy,
		roles, accessList, user.IsActive, user.IsStaff, user.IsSuperuser,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, user *User) error {
	roles, accessList, err := marshalLists(user)
	if err != nil {
		return err
	}
	query := `
		UPDATE users SET
			email = $2, password_hash = $3, first_name = $4, last_name = $5, username = NULLIF($6, ''),
			email_verified = $7, email_verified_at = $8, mobile = $9, mobile_verified = $10, mobile_verified_at = $11,
			national_code = $12, shahkar_verified = $13, shahkar_verified_at = $14, shahkar_response = $15,
			postal_code = $16, postal_address = $17, avatar_path = $18, avatar_updated_at = $19,
			identity_verified = $20, identity_verified_at = $21, identity_verified_by = $22,
			roles = $23, access_list = $24, is_active = $25, is_staff = $26, is_superuser = $27,
			updated_at = NOW()
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Username,
		user.EmailVerified, user.EmailVerifiedAt, user.Mobile, user.MobileVerified, user.MobileVerifiedAt,
		user.NationalCode, user.ShahkarVerified, user.ShahkarVerifiedAt, user.ShahkarResponse,
		user.PostalCode, user.PostalAddress, user.AvatarPath, user.AvatarUpdatedAt,
		user.IdentityVerified, user.IdentityVerifiedAt, user.IdentityVerifiedBy,
		roles, accessList, user.IsActive, user.IsStaff, user.IsSuperuser,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.getOne(ctx, query, id)
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return s.getOne(ctx, query, email)
}

func (s *PostgresStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return s.getOne(ctx, query, username)
}

func (s *PostgresStore) getOne(ctx context.Context, query string, arg any) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	var args []any
	if filter.EmailContains != "" {
		args = append(args, "%"+filter.EmailContains+"%")
		query += fmt.Sprintf(" AND email LIKE $%d", len(args))
	}
	if filter.IsStaff != nil {
		args = append(args, *filter.IsStaff)
		query += fmt.Sprintf(" AND is_staff = $%d", len(args))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		query += fmt.Sprintf(" AND is_active = $%d", len(args))
	}
	query += " ORDER BY created_at"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return s.queryUsers(ctx, query, args...)
}

func (s *PostgresStore) EligibleAccountables(ctx context.Context, excludeID *uuid.UUID) ([]*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE is_active AND is_staff AND roles @> $1
		  AND ($2::uuid IS NULL OR id <> $2)
		ORDER BY id
	`
	return s.queryUsers(ctx, query, accountableRoleJSON(), excludeID)
}

func (s *PostgresStore) SearchAccountables(ctx context.Context, emailContains string, excludeID *uuid.UUID) ([]*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE is_active AND is_staff AND roles @> $1
		  AND email LIKE $2
		  AND ($3::uuid IS NULL OR id <> $3)
		ORDER BY email
	`
	return s.queryUsers(ctx, query, accountableRoleJSON(), "%"+emailContains+"%", excludeID)
}

func (s *PostgresStore) MarkIdentityVerified(ctx context.Context, userID, by uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE users
		SET identity_verified = TRUE, identity_verified_at = $2, identity_verified_by = $3, updated_at = NOW()
		WHERE id = $1 AND identity_verified = FALSE
	`
	result, err := s.db.ExecContext(ctx, query, userID, at, by)
	if err != nil {
		return false, fmt.Errorf("mark identity verified: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark identity verified rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *PostgresStore) queryUsers(ctx context.Context, query string, args ...any) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		user       User
		roles      []byte
		accessList []byte
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName, &user.Username,
		&user.EmailVerified, &user.EmailVerifiedAt, &user.Mobile, &user.MobileVerified, &user.MobileVerifiedAt,
		&user.NationalCode, &user.ShahkarVerified, &user.ShahkarVerifiedAt, &user.ShahkarResponse,
		&user.PostalCode, &user.PostalAddress, &user.AvatarPath, &user.AvatarUpdatedAt,
		&user.IdentityVerified, &user.IdentityVerifiedAt, &user.IdentityVerifiedBy,
		&roles, &accessList, &user.IsActive, &user.IsStaff, &user.IsSuperuser,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(roles, &user.Roles); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	if err := json.Unmarshal(accessList, &user.AccessList); err != nil {
		return nil, fmt.Errorf("decode access list: %w", err)
	}
	return &user, nil
}

func marshalLists(user *User) ([]byte, []byte, error) {
	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}
	accessList := user.AccessList
	if accessList == nil {
		accessList = []string{}
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return nil, nil, fmt.Errorf("encode roles: %w", err)
	}
	accessJSON, err := json.Marshal(accessList)
	if err != nil {
		return nil, nil, fmt.Errorf("encode access list: %w", err)
	}
	return rolesJSON, accessJSON, nil
}

func accountableRoleJSON() []byte {
	data, _ := json.Marshal([]string{RoleVerificationsAccountable})
	return data
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
