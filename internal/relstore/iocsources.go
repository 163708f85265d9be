package relstore

import (
	"context"
	"fmt"
	"time"

	"netedge-siem/internal/model"
)

const iocSourceColumns = `id, name, type, url, description, is_enabled, last_fetched, created_at, updated_at`

func scanIoCSource(row interface {
	Scan(dest ...interface{}) error
}) (model.IoCSource, error) {
	var src model.IoCSource
	err := row.Scan(&src.ID, &src.Name, &src.Type, &src.URL, &src.Description, &src.IsEnabled,
		&src.LastFetched, &src.CreatedAt, &src.UpdatedAt)
	return src, err
}

func (s *Store) EnabledIoCSources(ctx context.Context) ([]model.IoCSource, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+iocSourceColumns+` FROM ioc_sources WHERE is_enabled = true ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list enabled ioc sources: %w", err)
	}
	defer rows.Close()

	var out []model.IoCSource
	for rows.Next() {
		src, err := scanIoCSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ioc source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *Store) MarkIoCSourceFetched(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `UPDATE ioc_sources SET last_fetched = $1, updated_at = $1 WHERE id = $2`, now, id)
	if err != nil {
		return fmt.Errorf("mark ioc source fetched: %w", err)
	}
	return nil
}

func (s *Store) CreateIoCSource(ctx context.Context, src model.IoCSource) (model.IoCSource, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO ioc_sources (name, type, url, description, is_enabled) VALUES ($1,$2,$3,$4,$5)
		 RETURNING id, created_at, updated_at`,
		src.Name, src.Type, src.URL, src.Description, src.IsEnabled,
	).Scan(&src.ID, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return model.IoCSource{}, fmt.Errorf("insert ioc source: %w", err)
	}
	return src, nil
}

func (s *Store) ListIoCSources(ctx context.Context) ([]model.IoCSource, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+iocSourceColumns+` FROM ioc_sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list ioc sources: %w", err)
	}
	defer rows.Close()

	var out []model.IoCSource
	for rows.Next() {
		src, err := scanIoCSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ioc source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}
