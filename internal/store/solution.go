package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/wwfm-app/wwfm/internal/domain"
)

type SolutionStore struct {
	db Pool
}

func NewSolutionStore(db Pool) *SolutionStore {
	return &SolutionStore{db: db}
}

func (s *SolutionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Solution, error) {
	sol := &domain.Solution{}
	err := s.db.QueryRow(ctx,
		`SELECT id, title, category, is_approved, created_by, created_at, updated_at
		 FROM solutions WHERE id = $1`,
		id,
	).Scan(&sol.ID, &sol.Title, &sol.Category, &sol.IsApproved, &sol.CreatedBy, &sol.CreatedAt, &sol.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "store: get solution")
	}
	return sol, nil
}

// GetByTitle matches titles case-insensitively within a category.
func (s *SolutionStore) GetByTitle(ctx context.Context, title, category string) (*domain.Solution, error) {
	sol := &domain.Solution{}
	err := s.db.QueryRow(ctx,
		`SELECT id, title, category, is_approved, created_by, created_at, updated_at
		 FROM solutions WHERE lower(title) = lower($1) AND category = $2`,
		title, category,
	).Scan(&sol.ID, &sol.Title, &sol.Category, &sol.IsApproved, &sol.CreatedBy, &sol.CreatedAt, &sol.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "store: get solution by title")
	}
	return sol, nil
}

func (s *SolutionStore) Create(ctx context.Context, sol *domain.Solution) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO solutions (title, category, is_approved, created_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		sol.Title, sol.Category, sol.IsApproved, sol.CreatedBy,
	).Scan(&sol.ID, &sol.CreatedAt, &sol.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return eris.Wrap(err, "store: create solution")
	}
	return nil
}

func (s *SolutionStore) Approve(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE solutions SET is_approved = TRUE, updated_at = NOW()
		 WHERE id = $1 AND is_approved = FALSE`,
		id,
	)
	return eris.Wrapf(err, "store: approve solution %s", id)
}

func (s *SolutionStore) GetVariantByID(ctx context.Context, id uuid.UUID) (*domain.SolutionVariant, error) {
	v := &domain.SolutionVariant{}
	err := s.db.QueryRow(ctx,
		`SELECT id, solution_id, variant_name, amount, unit, form, is_default, created_at
		 FROM solution_variants WHERE id = $1`,
		id,
	).Scan(&v.ID, &v.SolutionID, &v.VariantName, &v.Amount, &v.Unit, &v.Form, &v.IsDefault, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "store: get variant")
	}
	return v, nil
}

func (s *SolutionStore) GetVariantByName(ctx context.Context, solutionID uuid.UUID, name string) (*domain.SolutionVariant, error) {
	v := &domain.SolutionVariant{}
	err := s.db.QueryRow(ctx,
		`SELECT id, solution_id, variant_name, amount, unit, form, is_default, created_at
		 FROM solution_variants WHERE solution_id = $1 AND variant_name = $2`,
		solutionID, name,
	).Scan(&v.ID, &v.SolutionID, &v.VariantName, &v.Amount, &v.Unit, &v.Form, &v.IsDefault, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "store: get variant by name")
	}
	return v, nil
}

func (s *SolutionStore) CreateVariant(ctx context.Context, v *domain.SolutionVariant) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO solution_variants (solution_id, variant_name, amount, unit, form, is_default)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		v.SolutionID, v.VariantName, v.Amount, v.Unit, v.Form, v.IsDefault,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return eris.Wrap(err, "store: create variant")
	}
	return nil
}
