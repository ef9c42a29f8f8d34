package assessment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const recordCols = `id, run_id, chief_complaint, category, priority, confidence, reasoning,
	source, requires_manual_review, stages, bundle, record_error, created_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.RunID, &r.ChiefComplaint, &r.Category, &r.Priority, &r.Confidence,
		&r.Reasoning, &r.Source, &r.RequiresManualReview, &r.Stages, &r.Bundle, &r.RecordError,
		&r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &r, err
}

func (p *repoPG) Create(ctx context.Context, r *Record) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO assessment (id, run_id, chief_complaint, category, priority, confidence,
			reasoning, source, requires_manual_review, stages, bundle, record_error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		r.ID, r.RunID, r.ChiefComplaint, r.Category, r.Priority, r.Confidence,
		r.Reasoning, r.Source, r.RequiresManualReview, r.Stages, r.Bundle, r.RecordError)
	return err
}

func (p *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return scanRecord(p.pool.QueryRow(ctx, `SELECT `+recordCols+` FROM assessment WHERE id = $1`, id))
}

func (p *repoPG) List(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	return p.list(ctx, ``, limit, offset)
}

func (p *repoPG) ListPendingReview(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	return p.list(ctx, ` WHERE requires_manual_review`, limit, offset)
}

func (p *repoPG) list(ctx context.Context, where string, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM assessment`+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := p.pool.Query(ctx, `SELECT `+recordCols+` FROM assessment`+where+
		` ORDER BY priority ASC, created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, r)
	}
	return items, total, rows.Err()
}

func (p *repoPG) AddOverride(ctx context.Context, o *Override) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO assessment_override (id, assessment_id, category, reviewer, note)
		VALUES ($1,$2,$3,$4,$5)`,
		o.ID, o.AssessmentID, o.Category, o.Reviewer, o.Note)
	return err
}

func (p *repoPG) ListOverrides(ctx context.Context, assessmentID uuid.UUID) ([]*Override, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, assessment_id, category, reviewer, note, created_at
		FROM assessment_override WHERE assessment_id = $1 ORDER BY created_at ASC`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Override
	for rows.Next() {
		var o Override
		if err := rows.Scan(&o.ID, &o.AssessmentID, &o.Category, &o.Reviewer, &o.Note, &o.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &o)
	}
	return items, rows.Err()
}
