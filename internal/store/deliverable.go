package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/buildwave/apiserver/types"
)

// DeliverableRepository handles persistence for deliverable metadata.
// File contents live in object storage; only the object key is stored here.
type DeliverableRepository struct {
	db *sql.DB
}

func NewDeliverableRepository(db *sql.DB) *DeliverableRepository {
	return &DeliverableRepository{db: db}
}

func (r *DeliverableRepository) Create(ctx context.Context, deliverable types.Deliverable) (types.Deliverable, error) {
	deliverable.UploadedAt = time.Now()

	const query = `
		INSERT INTO deliverables (id, project_id, file_name, object_key, uploaded_by, size, content_type, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		deliverable.ID,
		deliverable.ProjectID,
		deliverable.FileName,
		deliverable.ObjectKey,
		deliverable.UploadedBy,
		deliverable.Size,
		deliverable.ContentType,
		deliverable.UploadedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return types.Deliverable{}, ErrConflict
		}
		return types.Deliverable{}, err
	}
	return deliverable, nil
}

func (r *DeliverableRepository) Get(ctx context.Context, id string) (types.Deliverable, error) {
	const query = `
		SELECT id, project_id, file_name, object_key, uploaded_by, size, content_type, uploaded_at
		FROM deliverables
		WHERE id = $1`
	var deliverable types.Deliverable
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&deliverable.ID,
		&deliverable.ProjectID,
		&deliverable.FileName,
		&deliverable.ObjectKey,
		&deliverable.UploadedBy,
		&deliverable.Size,
		&deliverable.ContentType,
		&deliverable.UploadedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Deliverable{}, ErrNotFound
		}
		return types.Deliverable{}, err
	}
	return deliverable, nil
}

func (r *DeliverableRepository) ListByProject(ctx context.Context, projectID string) ([]types.Deliverable, error) {
	const query = `
		SELECT id, project_id, file_name, object_key, uploaded_by, size, content_type, uploaded_at
		FROM deliverables
		WHERE project_id = $1
		ORDER BY uploaded_at, id`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliverables []types.Deliverable
	for rows.Next() {
		var deliverable types.Deliverable
		if err := rows.Scan(
			&deliverable.ID,
			&deliverable.ProjectID,
			&deliverable.FileName,
			&deliverable.ObjectKey,
			&deliverable.UploadedBy,
			&deliverable.Size,
			&deliverable.ContentType,
			&deliverable.UploadedAt,
		); err != nil {
			return nil, err
		}
		deliverables = append(deliverables, deliverable)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deliverables, nil
}

func (r *DeliverableRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM deliverables WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
