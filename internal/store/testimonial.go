package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/buildwave/apiserver/types"
)

// TestimonialRepository handles persistence for testimonials.
// Mutations here never touch project or user rows.
type TestimonialRepository struct {
	db *sql.DB
}

func NewTestimonialRepository(db *sql.DB) *TestimonialRepository {
	return &TestimonialRepository{db: db}
}

const testimonialColumns = `id, author_name, author_school, author_course, user_id,
	rating, review, status, is_featured, created_at`

func scanTestimonial(row interface{ Scan(...any) error }) (types.Testimonial, error) {
	var testimonial types.Testimonial
	err := row.Scan(
		&testimonial.ID,
		&testimonial.AuthorName,
		&testimonial.AuthorSchool,
		&testimonial.AuthorCourse,
		&testimonial.UserID,
		&testimonial.Rating,
		&testimonial.Review,
		&testimonial.Status,
		&testimonial.IsFeatured,
		&testimonial.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Testimonial{}, ErrNotFound
		}
		return types.Testimonial{}, err
	}
	return testimonial, nil
}

func (r *TestimonialRepository) Get(ctx context.Context, id string) (types.Testimonial, error) {
	const query = `SELECT ` + testimonialColumns + ` FROM testimonials WHERE id = $1`
	return scanTestimonial(r.db.QueryRowContext(ctx, query, id))
}

func (r *TestimonialRepository) Create(ctx context.Context, testimonial types.Testimonial) (types.Testimonial, error) {
	testimonial.CreatedAt = time.Now()

	const query = `
		INSERT INTO testimonials (id, author_name, author_school, author_course, user_id,
			rating, review, status, is_featured, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		testimonial.ID,
		testimonial.AuthorName,
		testimonial.AuthorSchool,
		testimonial.AuthorCourse,
		testimonial.UserID,
		testimonial.Rating,
		testimonial.Review,
		testimonial.Status,
		testimonial.IsFeatured,
		testimonial.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return types.Testimonial{}, ErrConflict
		}
		return types.Testimonial{}, err
	}
	return testimonial, nil
}

// List returns testimonials, optionally narrowed to a moderation status.
func (r *TestimonialRepository) List(ctx context.Context, status string, offset, limit int) ([]types.Testimonial, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	where := ""
	args := []any{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM testimonials`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := fmt.Sprintf(
		`SELECT `+testimonialColumns+` FROM testimonials%s ORDER BY created_at DESC, id OFFSET $%d LIMIT $%d`,
		where, len(args)+1, len(args)+2,
	)
	rows, err := r.db.QueryContext(ctx, listQuery, append(args, offset, limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	testimonials := make([]types.Testimonial, 0, limit)
	for rows.Next() {
		testimonial, err := scanTestimonial(rows)
		if err != nil {
			return nil, 0, err
		}
		testimonials = append(testimonials, testimonial)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return testimonials, total, nil
}

func (r *TestimonialRepository) UpdateStatus(ctx context.Context, id, status string) (types.Testimonial, error) {
	const query = `UPDATE testimonials SET status = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return types.Testimonial{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Testimonial{}, err
	}
	if affected == 0 {
		return types.Testimonial{}, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *TestimonialRepository) SetFeatured(ctx context.Context, id string, featured bool) (types.Testimonial, error) {
	const query = `UPDATE testimonials SET is_featured = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, featured, id)
	if err != nil {
		return types.Testimonial{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Testimonial{}, err
	}
	if affected == 0 {
		return types.Testimonial{}, ErrNotFound
	}
	return r.Get(ctx, id)
}
