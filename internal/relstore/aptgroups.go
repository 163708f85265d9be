package relstore

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"netedge-siem/internal/model"
)

// Exists implements indicator.APTGroupExistence.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM apt_groups WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check apt group existence: %w", err)
	}
	return exists, nil
}

// EnsureGroupsExist implements indicator.APTGroupEnsurer: resolves each
// name to an id, inserting a bare-bones row for any name not already
// present, matching the original ioc_sources fetch job's behaviour of
// creating APT groups on first reference from a feed.
func (s *Store) EnsureGroupsExist(ctx context.Context, names []string) (map[string]int64, error) {
	out := make(map[string]int64, len(names))
	for _, name := range names {
		var id int64
		err := s.db.QueryRowContext(ctx, `SELECT id FROM apt_groups WHERE name = $1`, name).Scan(&id)
		if err == nil {
			out[name] = id
			continue
		}

		err = s.db.QueryRowContext(ctx,
			`INSERT INTO apt_groups (name) VALUES ($1)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`, name).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("ensure apt group %q exists: %w", name, err)
		}
		out[name] = id
	}
	return out, nil
}

func (s *Store) CreateAPTGroup(ctx context.Context, g model.APTGroup) (model.APTGroup, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO apt_groups (name, aliases, description, sophistication, primary_motivation, target_sectors, country, first_observed, last_observed, "references")
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		g.Name, pq.Array(g.Aliases), g.Description, g.Sophistication, g.PrimaryMotivation,
		pq.Array(g.TargetSectors), g.Country, g.FirstObserved, g.LastObserved, pq.Array(g.References),
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return model.APTGroup{}, fmt.Errorf("insert apt group: %w", err)
	}
	return g, nil
}

func (s *Store) GetAPTGroup(ctx context.Context, id int64) (*model.APTGroup, error) {
	g := model.APTGroup{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, aliases, description, sophistication, primary_motivation, target_sectors, country, first_observed, last_observed, "references", created_at, updated_at
		 FROM apt_groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, pq.Array(&g.Aliases), &g.Description, &g.Sophistication, &g.PrimaryMotivation,
		pq.Array(&g.TargetSectors), &g.Country, &g.FirstObserved, &g.LastObserved, pq.Array(&g.References),
		&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load apt group: %w", err)
	}
	return &g, nil
}

// IoCUnlinker scrubs an APT group attribution from every IoC that
// references it, returning how many documents were updated. Satisfied by
// internal/indicator.Service.UnlinkAPTFromAll; injected by the caller to
// keep this package free of a docstore/indicator import.
type IoCUnlinker interface {
	UnlinkAPTFromAll(ctx context.Context, aptGroupID int64) (int, error)
}

// DeleteAPTGroup scrubs id from every referencing IoC document before
// deleting the relational row, mirroring remove_apt_id_from_all_iocs. The
// scrub runs first so a failure leaves the group (and its attributions)
// intact rather than orphaning IoC documents against a deleted id. Returns
// the number of IoC documents the scrub updated.
func (s *Store) DeleteAPTGroup(ctx context.Context, id int64, unlinker IoCUnlinker) (int, error) {
	updated, err := unlinker.UnlinkAPTFromAll(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("scrub apt group %d from iocs: %w", id, err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM apt_groups WHERE id = $1`, id); err != nil {
		return 0, fmt.Errorf("delete apt group %d: %w", id, err)
	}
	return updated, nil
}

func (s *Store) ListAPTGroups(ctx context.Context) ([]model.APTGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, aliases, description, sophistication, primary_motivation, target_sectors, country, first_observed, last_observed, "references", created_at, updated_at
		 FROM apt_groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list apt groups: %w", err)
	}
	defer rows.Close()

	var out []model.APTGroup
	for rows.Next() {
		g := model.APTGroup{}
		if err := rows.Scan(&g.ID, &g.Name, pq.Array(&g.Aliases), &g.Description, &g.Sophistication, &g.PrimaryMotivation,
			pq.Array(&g.TargetSectors), &g.Country, &g.FirstObserved, &g.LastObserved, pq.Array(&g.References),
			&g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan apt group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
