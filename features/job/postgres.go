package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, j *Job) error {
	query := `INSERT INTO jobs (id, filename, status) VALUES ($1, $2, $3) RETURNING created_at, updated_at`
	return s.db.QueryRowContext(ctx, query, j.ID, j.Filename, j.Status).Scan(&j.CreatedAt, &j.UpdatedAt)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Job, error) {
	j := &Job{}
	var result []byte
	query := `SELECT id, filename, status, result, created_at, updated_at FROM jobs WHERE id = $1`
	err := s.db.QueryRowContext(ctx, query, id).Scan(&j.ID, &j.Filename, &j.Status, &result, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(result) > 0 {
		j.Result = &Result{}
		if err := json.Unmarshal(result, j.Result); err != nil {
			return nil, fmt.Errorf("decode job result: %w", err)
		}
	}
	return j, nil
}

func (s *PostgresStore) Complete(ctx context.Context, id string, status Status, result Result) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}
	query := `UPDATE jobs SET status = $1, result = $2, updated_at = NOW() WHERE id = $3 AND status = 'processing'`
	res, err := s.db.ExecContext(ctx, query, status, body, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyFinished
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[Status]int{StatusProcessing: 0, StatusSuccess: 0, StatusError: 0}
	for rows.Next() {
		var (
			status Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
