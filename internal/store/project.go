package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/buildwave/apiserver/types"
)

// ProjectRepository handles persistence for projects.
//
// Creation and status updates run in a transaction so the owning user's
// aggregate counters stay consistent with the underlying project rows.
type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// ProjectFilter narrows List to simple equality matches. Empty fields
// match everything; richer filtering (free-text search) stays client-side.
type ProjectFilter struct {
	UserID int
	Status string
	Level  string
}

const projectColumns = `id, user_id, title, discipline, level, description, status, progress,
	deadline, budget, contact_channel, needs_topic, has_project, assigned_to,
	created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (types.Project, error) {
	var project types.Project
	err := row.Scan(
		&project.ID,
		&project.UserID,
		&project.Title,
		&project.Discipline,
		&project.Level,
		&project.Description,
		&project.Status,
		&project.Progress,
		&project.Deadline,
		&project.Budget,
		&project.ContactChannel,
		&project.NeedsTopic,
		&project.HasProject,
		&project.AssignedTo,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Project{}, ErrNotFound
		}
		return types.Project{}, err
	}
	return project, nil
}

func (r *ProjectRepository) Get(ctx context.Context, id string) (types.Project, error) {
	const query = `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	return scanProject(r.db.QueryRowContext(ctx, query, id))
}

func (r *ProjectRepository) List(ctx context.Context, filter ProjectFilter, offset, limit int) ([]types.Project, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	where := ""
	args := []any{}
	appendClause := func(clause string, value any) {
		args = append(args, value)
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(clause, len(args))
	}
	if filter.UserID != 0 {
		appendClause("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		appendClause("status = $%d", filter.Status)
	}
	if filter.Level != "" {
		appendClause("level = $%d", filter.Level)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM projects`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listArgs := append(args, offset, limit)
	listQuery := fmt.Sprintf(
		`SELECT `+projectColumns+` FROM projects%s ORDER BY created_at DESC, id OFFSET $%d LIMIT $%d`,
		where, len(args)+1, len(args)+2,
	)
	rows, err := r.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	projects := make([]types.Project, 0, limit)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return projects, total, nil
}

// Create writes a new project under a generated BW-<year>-<sequence>
// identifier, records the submission timeline event, and increments the
// owner's submitted counter. All three writes commit atomically.
func (r *ProjectRepository) Create(ctx context.Context, project types.Project) (types.Project, error) {
	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Project{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT nextval('project_id_seq')`).Scan(&seq); err != nil {
		return types.Project{}, err
	}
	project.ID = fmt.Sprintf("BW-%d-%04d", now.Year(), seq)

	const insertQuery = `
		INSERT INTO projects (id, user_id, title, discipline, level, description, status, progress,
			deadline, budget, contact_channel, needs_topic, has_project, assigned_to,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	if _, err := tx.ExecContext(
		ctx,
		insertQuery,
		project.ID,
		project.UserID,
		project.Title,
		project.Discipline,
		project.Level,
		project.Description,
		project.Status,
		project.Progress,
		project.Deadline,
		project.Budget,
		project.ContactChannel,
		project.NeedsTopic,
		project.HasProject,
		project.AssignedTo,
		project.CreatedAt,
		project.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return types.Project{}, ErrConflict
		}
		return types.Project{}, err
	}

	const eventQuery = `
		INSERT INTO timeline_events (project_id, actor, kind, description, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(
		ctx,
		eventQuery,
		project.ID,
		types.ActorStudent,
		types.EventSubmission,
		"Project request submitted",
		now,
	); err != nil {
		return types.Project{}, err
	}

	const counterQuery = `
		UPDATE users
		SET projects_submitted = projects_submitted + 1, last_active_at = $1
		WHERE id = $2`
	if _, err := tx.ExecContext(ctx, counterQuery, now, project.UserID); err != nil {
		return types.Project{}, err
	}

	if err := tx.Commit(); err != nil {
		return types.Project{}, err
	}
	return project, nil
}

// UpdateStatus applies a status/progress partial update with no
// transition guard. The owner's completed counter moves in the same
// transaction: up on entering completed, down on leaving it, so a
// regression does not double-count the project. No timeline event is
// recorded here; callers append one explicitly.
func (r *ProjectRepository) UpdateStatus(ctx context.Context, id, status string, progress int) (types.Project, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Project{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const currentQuery = `SELECT status, user_id FROM projects WHERE id = $1 FOR UPDATE`
	var prevStatus string
	var ownerID int
	if err := tx.QueryRowContext(ctx, currentQuery, id).Scan(&prevStatus, &ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Project{}, ErrNotFound
		}
		return types.Project{}, err
	}

	now := time.Now()
	const updateQuery = `
		UPDATE projects
		SET status = $1, progress = $2, updated_at = $3
		WHERE id = $4`
	if _, err := tx.ExecContext(ctx, updateQuery, status, progress, now, id); err != nil {
		return types.Project{}, err
	}

	if status == types.StatusCompleted && prevStatus != types.StatusCompleted {
		const counterQuery = `
			UPDATE users SET projects_completed = projects_completed + 1 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, counterQuery, ownerID); err != nil {
			return types.Project{}, err
		}
	} else if status != types.StatusCompleted && prevStatus == types.StatusCompleted {
		const counterQuery = `
			UPDATE users SET projects_completed = GREATEST(projects_completed - 1, 0) WHERE id = $1`
		if _, err := tx.ExecContext(ctx, counterQuery, ownerID); err != nil {
			return types.Project{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return types.Project{}, err
	}
	return r.Get(ctx, id)
}

// UpdateAssignee reassigns or clears the admin-side assignee.
func (r *ProjectRepository) UpdateAssignee(ctx context.Context, id string, assignee *int) (types.Project, error) {
	const query = `UPDATE projects SET assigned_to = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, assignee, time.Now(), id)
	if err != nil {
		return types.Project{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Project{}, err
	}
	if affected == 0 {
		return types.Project{}, ErrNotFound
	}
	return r.Get(ctx, id)
}

// Delete removes the project. Timeline events and deliverable rows go
// with it via ON DELETE CASCADE; the object keys of the removed
// deliverables are returned so callers can clean up object storage.
func (r *ProjectRepository) Delete(ctx context.Context, id string) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const keysQuery = `SELECT object_key FROM deliverables WHERE project_id = $1`
	rows, err := tx.QueryContext(ctx, keysQuery, id)
	if err != nil {
		return nil, err
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	const deleteQuery = `DELETE FROM projects WHERE id = $1`
	result, err := tx.ExecContext(ctx, deleteQuery, id)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return keys, nil
}
