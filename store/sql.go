package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/liamcoop/claims/claims"
	"github.com/liamcoop/claims/internal/database"
	"github.com/liamcoop/claims/internal/logger"
)

const claimColumns = `id, status, documents, policy_holder, insured_person, incident_date, claim_amount,
	classification_results, extraction_results, liability_evaluation, error, version, created_at, updated_at`

// SQLStore keeps claims in PostgreSQL or SQLite. Stage results are stored as
// JSON documents and every write bumps the version column, which Update uses
// for optimistic concurrency.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLStore creates a store over an already migrated database
func NewSQLStore(db *sql.DB, dialect database.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

type claimRow struct {
	documents      string
	classification sql.NullString
	extraction     sql.NullString
	liability      sql.NullString
}

func encodeClaim(c *claims.Claim) (claimRow, error) {
	var row claimRow

	docs := c.Documents
	if docs == nil {
		docs = []string{}
	}
	b, err := json.Marshal(docs)
	if err != nil {
		return row, fmt.Errorf("failed to marshal documents: %w", err)
	}
	row.documents = string(b)

	if row.classification, err = encodeOptional(c.ClassificationResults != nil, c.ClassificationResults); err != nil {
		return row, fmt.Errorf("failed to marshal classification results: %w", err)
	}
	if row.extraction, err = encodeOptional(c.ExtractionResults != nil, c.ExtractionResults); err != nil {
		return row, fmt.Errorf("failed to marshal extraction results: %w", err)
	}
	if row.liability, err = encodeOptional(c.LiabilityEvaluation != nil, c.LiabilityEvaluation); err != nil {
		return row, fmt.Errorf("failed to marshal liability evaluation: %w", err)
	}
	return row, nil
}

func encodeOptional(present bool, v any) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// Create inserts a new claim with version 1
func (s *SQLStore) Create(ctx context.Context, c *claims.Claim) error {
	now := time.Now().UTC()
	c.Version = 1
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt

	row, err := encodeClaim(c)
	if err != nil {
		return err
	}

	query := s.dialect.Rebind(`
		INSERT INTO claims (` + claimColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)
	result, err := s.db.ExecContext(ctx, query,
		c.ID, string(c.Status), row.documents, c.PolicyHolder, c.InsuredPerson,
		s.dialect.NullTime(c.IncidentDate), nullFloat(c.ClaimAmount),
		row.classification, row.extraction, row.liability,
		c.Error, c.Version, s.dialect.Time(c.CreatedAt), s.dialect.Time(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check insert result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrExists, c.ID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(sc rowScanner) (*claims.Claim, error) {
	var (
		c              claims.Claim
		status         string
		documents      []byte
		incident       database.Time
		amount         sql.NullFloat64
		classification []byte
		extraction     []byte
		liability      []byte
		createdAt      database.Time
		updatedAt      database.Time
	)

	err := sc.Scan(&c.ID, &status, &documents, &c.PolicyHolder, &c.InsuredPerson, &incident, &amount,
		&classification, &extraction, &liability, &c.Error, &c.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	c.Status = claims.Status(status)
	c.IncidentDate = incident.Ptr()
	if amount.Valid {
		v := amount.Float64
		c.ClaimAmount = &v
	}
	c.CreatedAt = createdAt.Time
	c.UpdatedAt = updatedAt.Time

	if err := decodeJSON(documents, &c.Documents); err != nil {
		return nil, fmt.Errorf("invalid documents for claim %s: %w", c.ID, err)
	}
	if err := decodeJSON(classification, &c.ClassificationResults); err != nil {
		return nil, fmt.Errorf("invalid classification results for claim %s: %w", c.ID, err)
	}
	if err := decodeJSON(extraction, &c.ExtractionResults); err != nil {
		return nil, fmt.Errorf("invalid extraction results for claim %s: %w", c.ID, err)
	}
	if len(liability) > 0 {
		c.LiabilityEvaluation = &claims.LiabilityEvaluation{}
		if err := json.Unmarshal(liability, c.LiabilityEvaluation); err != nil {
			return nil, fmt.Errorf("invalid liability evaluation for claim %s: %w", c.ID, err)
		}
	}

	return &c, nil
}

func decodeJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// Get returns the claim with the given id
func (s *SQLStore) Get(ctx context.Context, id string) (*claims.Claim, error) {
	query := s.dialect.Rebind(`SELECT ` + claimColumns + ` FROM claims WHERE id = ?`)

	c, err := scanClaim(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return c, nil
}

// Update reads the claim, applies fn and writes it back only if the version
// is unchanged, retrying up to MaxUpdateAttempts times before ErrConflict
func (s *SQLStore) Update(ctx context.Context, id string, fn func(*claims.Claim) error) (*claims.Claim, error) {
	for attempt := 1; attempt <= MaxUpdateAttempts; attempt++ {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
		next.Version = current.Version + 1
		next.UpdatedAt = time.Now().UTC()

		ok, err := s.compareAndSwap(ctx, next, current.Version)
		if err != nil {
			return nil, err
		}
		if ok {
			return next, nil
		}

		logger.Debug("Claim version conflict, retrying", "claim_id", id, "attempt", attempt)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrConflict, id)
}

func (s *SQLStore) compareAndSwap(ctx context.Context, c *claims.Claim, expected int64) (bool, error) {
	row, err := encodeClaim(c)
	if err != nil {
		return false, err
	}

	query := s.dialect.Rebind(`
		UPDATE claims SET
			status = ?, documents = ?, policy_holder = ?, insured_person = ?,
			incident_date = ?, claim_amount = ?, classification_results = ?,
			extraction_results = ?, liability_evaluation = ?, error = ?,
			version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`)
	result, err := s.db.ExecContext(ctx, query,
		string(c.Status), row.documents, c.PolicyHolder, c.InsuredPerson,
		s.dialect.NullTime(c.IncidentDate), nullFloat(c.ClaimAmount), row.classification,
		row.extraction, row.liability, c.Error,
		c.Version, s.dialect.Time(c.UpdatedAt),
		c.ID, expected,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update claim: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check update result: %w", err)
	}
	return affected == 1, nil
}

// List returns claims newest first
func (s *SQLStore) List(ctx context.Context, filter Filter) ([]*claims.Claim, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + claimColumns + ` FROM claims`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	switch {
	case filter.Limit > 0:
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	case filter.Offset > 0 && s.dialect == database.SQLite:
		// sqlite only accepts OFFSET after a LIMIT
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	out := []*claims.Claim{}
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claims: %w", err)
	}
	return out, nil
}
