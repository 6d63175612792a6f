package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"userapi/pkg/sentinel"
)

// PostgresStore persists verification requests. The one-active-request-per-
// subject rule is the partial unique index one_verification_request_at_a_time;
// a unique violation on insert surfaces as ErrDuplicateRequest.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `
	id, subject_kind, subject_id, user_id, status, accountable_id, inspected_at,
	accountable_note, accountable_comment, user_comment, created_at, updated_at
`

func (s *PostgresStore) Create(ctx context.Context, req *Request) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create request: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO verification_requests (
			subject_kind, subject_id, user_id, status,
			accountable_note, accountable_comment, user_comment
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query,
		string(req.Subject.Kind), req.Subject.ID, req.UserID, int(req.Status),
		req.AccountableNote, req.AccountableComment, req.UserComment,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("insert request: %w", err)
	}

	for i := range req.Documents {
		doc := &req.Documents[i]
		err = tx.QueryRowContext(ctx,
			`INSERT INTO documents (user_id, file_path, doc_type) VALUES ($1, $2, $3) RETURNING id, created_at`,
			doc.UserID, doc.FilePath, int(doc.Type),
		).Scan(&doc.ID, &doc.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO verification_request_documents (request_id, document_id) VALUES ($1, $2)`,
			req.ID, doc.ID,
		)
		if err != nil {
			return fmt.Errorf("link document: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*Request, error) {
	query := `SELECT ` + requestColumns + ` FROM verification_requests WHERE id = $1`
	req, err := scanRequest(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	if err := s.attachDocuments(ctx, []*Request{req}); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*Request, error) {
	query := `SELECT ` + requestColumns + ` FROM verification_requests WHERE 1=1`
	var args []any
	if filter.SubjectKind != "" {
		args = append(args, string(filter.SubjectKind))
		query += fmt.Sprintf(" AND subject_kind = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, int(*filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.AccountableID != nil {
		args = append(args, *filter.AccountableID)
		query += fmt.Sprintf(" AND accountable_id = $%d", len(args))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
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
	return s.queryRequests(ctx, query, args...)
}

func (s *PostgresStore) ListUnassigned(ctx context.Context) ([]*Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM verification_requests
		WHERE status = $1 AND accountable_id IS NULL
		ORDER BY created_at
	`
	return s.queryRequests(ctx, query, int(StatusSent))
}

func (s *PostgresStore) SentAssignedCounts(ctx context.Context) (map[uuid.UUID]int, error) {
	query := `
		SELECT accountable_id, COUNT(*)
		FROM verification_requests
		WHERE status = $1 AND accountable_id IS NOT NULL
		GROUP BY accountable_id
	`
	rows, err := s.db.QueryContext(ctx, query, int(StatusSent))
	if err != nil {
		return nil, fmt.Errorf("count assignments: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			id    uuid.UUID
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scan assignment count: %w", err)
		}
		counts[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignment counts: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) SetAccountable(ctx context.Context, id int64, accountableID uuid.UUID) (bool, error) {
	query := `
		UPDATE verification_requests
		SET accountable_id = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($3, $4)
	`
	result, err := s.db.ExecContext(ctx, query, id, accountableID, int(StatusRejected), int(StatusVerified))
	if err != nil {
		return false, fmt.Errorf("set accountable: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set accountable rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *PostgresStore) MarkInspected(ctx context.Context, id int64, status Status, comment string, at time.Time) (bool, error) {
	query := `
		UPDATE verification_requests
		SET status = $2, accountable_comment = $3, inspected_at = $4, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($5, $6)
	`
	result, err := s.db.ExecContext(ctx, query, id, int(status), comment, at, int(StatusRejected), int(StatusVerified))
	if err != nil {
		return false, fmt.Errorf("mark inspected: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark inspected rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id int64) (*Document, error) {
	query := `SELECT id, user_id, file_path, doc_type, created_at FROM documents WHERE id = $1`
	var doc Document
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.UserID, &doc.FilePath, &doc.Type, &doc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

func (s *PostgresStore) queryRequests(ctx context.Context, query string, args ...any) ([]*Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var requests []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	if err := s.attachDocuments(ctx, requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// attachDocuments loads the documents for a batch of requests in one query.
func (s *PostgresStore) attachDocuments(ctx context.Context, requests []*Request) error {
	if len(requests) == 0 {
		return nil
	}
	byID := make(map[int64]*Request, len(requests))
	ids := make([]int64, 0, len(requests))
	for _, req := range requests {
		byID[req.ID] = req
		ids = append(ids, req.ID)
	}
	query := `
		SELECT rd.request_id, d.id, d.user_id, d.file_path, d.doc_type, d.created_at
		FROM verification_request_documents rd
		JOIN documents d ON d.id = rd.document_id
		WHERE rd.request_id = ANY($1)
		ORDER BY d.id
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query request documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			requestID int64
			doc       Document
		)
		if err := rows.Scan(&requestID, &doc.ID, &doc.UserID, &doc.FilePath, &doc.Type, &doc.CreatedAt); err != nil {
			return fmt.Errorf("scan request document: %w", err)
		}
		if req, ok := byID[requestID]; ok {
			req.Documents = append(req.Documents, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate request documents: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var (
		req  Request
		kind string
	)
	err := row.Scan(
		&req.ID, &kind, &req.Subject.ID, &req.UserID, &req.Status, &req.AccountableID, &req.InspectedAt,
		&req.AccountableNote, &req.AccountableComment, &req.UserComment, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.Subject.Kind = SubjectKind(kind)
	return &req, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
